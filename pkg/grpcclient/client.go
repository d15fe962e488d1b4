// Package grpcclient 提供 gRPC 客户端工厂，支持 keepalive、请求超时、日志与指标拦截器
package grpcclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/fraudreview/pkg/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// ClientConfig gRPC 客户端配置
type ClientConfig struct {
	// 目标地址
	Target string
	// 建连最长等待
	ConnTimeout time.Duration
	// 单次请求超时，0 表示由调用方 ctx 决定
	RequestTimeout time.Duration
	// Keepalive 间隔，0 表示关闭
	KeepaliveInterval time.Duration
}

// NewClient 创建 gRPC 客户端连接，连接在首次调用时建立
func NewClient(cfg ClientConfig, logger *slog.Logger, m *metrics.Metrics) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(4*1024*1024),
			grpc.MaxCallSendMsgSize(4*1024*1024),
		),
		grpc.WithChainUnaryInterceptor(unaryClientInterceptor(cfg, logger, m)),
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, grpc.WithConnectParams(grpc.ConnectParams{
			Backoff: backoff.Config{
				BaseDelay:  100 * time.Millisecond,
				MaxDelay:   cfg.ConnTimeout,
				Multiplier: 1.6,
				Jitter:     0.2,
			},
			MinConnectTimeout: cfg.ConnTimeout,
		}))
	}

	if cfg.KeepaliveInterval > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveInterval,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}))
	}

	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		logger.Error("failed to create grpc client", "target", cfg.Target, "error", err)
		return nil, err
	}
	logger.Info("grpc client created", "target", cfg.Target)
	return conn, nil
}

// unaryClientInterceptor 一元 RPC 拦截器
func unaryClientInterceptor(cfg ClientConfig, logger *slog.Logger, m *metrics.Metrics) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()
		}

		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		elapsed := time.Since(start)
		m.RecordGRPCRequest(method, status.Code(err).String(), elapsed.Seconds())
		if err != nil {
			logger.WarnContext(ctx, "grpc request failed", "method", method, "duration", elapsed, "error", err)
			return err
		}
		logger.DebugContext(ctx, "grpc request succeeded", "method", method, "duration", elapsed)
		return nil
	}
}
