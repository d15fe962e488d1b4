package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	grpchandler "github.com/wyfcoding/fraudreview/internal/fraudreview/interfaces/grpc"
	httphandler "github.com/wyfcoding/fraudreview/internal/fraudreview/interfaces/http"
	"github.com/wyfcoding/fraudreview/pkg/config"
	"github.com/wyfcoding/fraudreview/pkg/metrics"
	"github.com/wyfcoding/fraudreview/pkg/middleware"
	"github.com/wyfcoding/fraudreview/pkg/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// createHTTPServer 创建 HTTP 服务器
func createHTTPServer(cfg *config.Config, app *components, log *slog.Logger, m *metrics.Metrics) *http.Server {
	if cfg.Server.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RequestContext(),
		middleware.Recovery(log),
		middleware.Logging(log),
		middleware.CORS(),
		middleware.Metrics(m),
	)

	// 系统端点
	sys := router.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "UP", "service": cfg.Server.Name, "timestamp": time.Now().Unix()})
		})
		sys.GET("/ready", func(c *gin.Context) {
			if err := app.ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "NOT_READY", "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "READY"})
		})
	}
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	// 业务路由
	var submitGuards []gin.HandlerFunc
	if app.limiter != nil {
		submitGuards = append(submitGuards, middleware.RateLimit(
			app.limiter,
			ratelimit.PerSecond(cfg.RateLimit.QPS, cfg.RateLimit.Burst),
			"fraudreview:transfer",
			middleware.SubjectKey,
		))
	}
	parser := middleware.NewTokenParser(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	httphandler.NewHandler(app.service, log).RegisterRoutes(router, middleware.JWTAuth(parser), submitGuards...)

	return &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
}

// createGRPCServer 创建 gRPC 服务器，管理接口要求 admin 角色
func createGRPCServer(cfg *config.Config, app *components, log *slog.Logger, m *metrics.Metrics) *grpc.Server {
	parser := middleware.NewTokenParser(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.GRPCRecoveryInterceptor(log),
		middleware.GRPCLoggingInterceptor(log),
		middleware.GRPCMetricsInterceptor(m),
		middleware.GRPCAuthInterceptor(parser, "admin"),
	))

	grpchandler.RegisterFraudReviewServer(server, grpchandler.NewHandler(app.service, log))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpchandler.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	return server
}
