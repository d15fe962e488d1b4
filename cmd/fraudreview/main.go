// FraudReviewService 主程序
// 功能：转账提交与风险定级、人工审核队列、审核记录、汇总指标与交易导出
// 架构：DDD + gin + gRPC，Outbox 经 Kafka 发布交易事件
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wyfcoding/fraudreview/pkg/config"
	"github.com/wyfcoding/fraudreview/pkg/logger"
	"github.com/wyfcoding/fraudreview/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", config.GetEnv("APP_CONFIG", "configs/fraudreview/config.toml"), "path to config file")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()

	ctx := context.Background()
	logger.Info(ctx, "Starting FraudReviewService",
		"service", cfg.Server.Name,
		"version", cfg.Server.Version,
		"environment", cfg.Server.Environment,
	)

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal(ctx, "auth.jwt_secret is required")
	}

	// 3. 初始化指标
	m := metrics.New(cfg.Server.Name)
	if cfg.Metrics.Enabled {
		if err := m.Register(prometheus.DefaultRegisterer); err != nil {
			logger.Fatal(ctx, "Failed to register metrics", "error", err)
		}
	}

	// 4. 组装基础设施与应用服务
	initDone := logger.LogDuration(ctx, "Service components initialized", "database", cfg.Database.Driver)
	app, err := build(ctx, cfg, log, m)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize service", "error", err)
	}
	initDone()
	defer app.close()

	httpServer := createHTTPServer(cfg, app, log, m)
	grpcServer := createGRPCServer(cfg, app, log, m)

	// 5. 启动，收到信号后 gctx 结束，所有后台任务随之退出
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr())
		if err != nil {
			return err
		}
		logger.Info(gctx, "Starting gRPC server", "addr", cfg.GRPC.Addr())
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info(gctx, "Starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Report.ReconcileInterval > 0 {
		g.Go(func() error {
			return app.reports.Start(gctx, cfg.Report.ReconcileInterval)
		})
	}

	if app.outbox != nil {
		g.Go(func() error {
			return app.outbox.Relay(gctx, app.producer, cfg.Kafka.RelayInterval, cfg.Kafka.RelayBatchSize)
		})
		g.Go(func() error {
			return cleanupOutbox(gctx, app, 7*24*time.Hour)
		})
	}

	if app.consumer != nil {
		g.Go(func() error {
			return app.consumer.Run(gctx, app.projection.Handle)
		})
		g.Go(func() error {
			return app.projection.StartFlusher(gctx)
		})
	}

	// 6. 优雅关停
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "Shutting down FraudReviewService")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "HTTP server shutdown error", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "server exited with error", "error", err)
	}
	logger.Info(ctx, "FraudReviewService stopped")
}

// cleanupOutbox 定期删除已投递的 Outbox 记录
func cleanupOutbox(ctx context.Context, app *components, retention time.Duration) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := app.outbox.CleanupProcessedMessages(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Warn(ctx, "outbox cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info(ctx, "outbox cleaned", "deleted", n)
			}
		}
	}
}
