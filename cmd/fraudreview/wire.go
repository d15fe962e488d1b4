package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/application"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/infrastructure/client"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/infrastructure/messaging"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/infrastructure/persistence/memory"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/infrastructure/persistence/mysql"
	redisstore "github.com/wyfcoding/fraudreview/internal/fraudreview/infrastructure/persistence/redis"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/interfaces/consumer"
	"github.com/wyfcoding/fraudreview/pkg/cache"
	"github.com/wyfcoding/fraudreview/pkg/config"
	"github.com/wyfcoding/fraudreview/pkg/db"
	"github.com/wyfcoding/fraudreview/pkg/grpcclient"
	"github.com/wyfcoding/fraudreview/pkg/metrics"
	"github.com/wyfcoding/fraudreview/pkg/mq"
	"github.com/wyfcoding/fraudreview/pkg/ratelimit"
)

// projectionWindow 投影消费者两次对账的最小间隔
const projectionWindow = 5 * time.Second

// components 进程内组装完成的依赖
type components struct {
	service    *application.FraudReviewService
	reports    *application.ReportService
	database   *db.DB
	redis      *redis.Client
	limiter    ratelimit.RateLimiter
	producer   *mq.Producer
	outbox     *messaging.OutboxEventPublisher
	consumer   *mq.Consumer
	projection *consumer.ReportProjection

	closers []func() error
}

// close 按创建的逆序释放资源
func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			slog.Warn("failed to release resource", "error", err)
		}
	}
}

// ready 就绪检查：数据库与 Redis 可达
func (c *components) ready(ctx context.Context) error {
	if c.database != nil {
		if err := c.database.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics) (*components, error) {
	c := &components{}
	ok := false
	defer func() {
		if !ok {
			c.close()
		}
	}()

	// 交易存储
	var repo domain.TransactionRepository
	if cfg.Database.Driver == "memory" {
		repo = memory.NewTransactionRepository()
		log.Warn("using in-memory transaction store, data is lost on restart")
	} else {
		database, err := db.Init(db.Config{
			Driver:             cfg.Database.Driver,
			DSN:                cfg.Database.DSN,
			MaxOpenConns:       cfg.Database.MaxOpenConns,
			MaxIdleConns:       cfg.Database.MaxIdleConns,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			LogEnabled:         cfg.Database.LogEnabled,
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		}, m)
		if err != nil {
			return nil, err
		}
		c.database = database
		c.closers = append(c.closers, database.Close)

		if err := mysql.AutoMigrate(database.DB); err != nil {
			return nil, fmt.Errorf("migrate transactions: %w", err)
		}
		if err := messaging.AutoMigrate(database.DB); err != nil {
			return nil, fmt.Errorf("migrate outbox: %w", err)
		}
		repo = mysql.NewTransactionRepository(database.DB)
	}

	// 汇总计数与限流
	var counter domain.ReportCounter
	if cfg.Redis.Addr != "" {
		rdb, err := cache.New(ctx, cache.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, log, m)
		if err != nil {
			return nil, err
		}
		c.redis = rdb
		c.closers = append(c.closers, rdb.Close)
		counter = redisstore.NewReportCounter(rdb)
		if cfg.RateLimit.Enabled {
			c.limiter = ratelimit.NewRedisRateLimiter(rdb)
		}
	} else {
		counter = memory.NewReportCounter()
		if cfg.RateLimit.Enabled {
			log.Warn("rate limiting requires redis, disabled")
		}
	}

	// 事件发布
	mqCfg := mq.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        cfg.Kafka.GroupID,
		DeadLetter:     cfg.Kafka.DeadLetter,
		MaxRetries:     cfg.Kafka.MaxRetries,
		RetryBackoff:   cfg.Kafka.RetryBackoff,
		SessionTimeout: cfg.Kafka.SessionTimeout,
	}
	var publisher domain.EventPublisher
	switch {
	case !mqCfg.Enabled():
		publisher = messaging.NewLogEventPublisher(log)
	case c.database != nil:
		c.producer = mq.NewProducer(mqCfg, log)
		c.closers = append(c.closers, c.producer.Close)
		c.outbox = messaging.NewOutboxEventPublisher(c.database.DB, cfg.Kafka.Topic, log)
		publisher = c.outbox
	default:
		c.producer = mq.NewProducer(mqCfg, log)
		c.closers = append(c.closers, c.producer.Close)
		publisher = messaging.NewKafkaEventPublisher(c.producer, cfg.Kafka.Topic)
	}

	// 风险评估
	assessor, err := buildAssessor(cfg.Risk, c, log, m)
	if err != nil {
		return nil, err
	}

	// 应用服务
	settings := application.TransferSettings{
		Policy: domain.Policy{
			Block:  domain.Threshold{Score: cfg.Risk.BlockThreshold.Score, Probability: cfg.Risk.BlockThreshold.Probability},
			Review: domain.Threshold{Score: cfg.Risk.ReviewThreshold.Score, Probability: cfg.Risk.ReviewThreshold.Probability},
		},
		Limits: domain.TransferLimits{
			MaxDailyCount:   cfg.Transfer.MaxDailyCount,
			MaxSingleAmount: config.Amount(cfg.Transfer.MaxSingleAmount),
			MaxDailySum:     config.Amount(cfg.Transfer.MaxDailySum),
		},
		HomeCurrency:      cfg.Transfer.HomeCurrency,
		AllowedCurrencies: cfg.Transfer.AllowedCurrencies,
	}
	if err := settings.Policy.Validate(); err != nil {
		return nil, err
	}

	transfers := application.NewTransferCommand(repo, assessor, counter, publisher, settings, m, log)
	reviews := application.NewReviewCommand(repo, counter, publisher, m, log)
	c.reports = application.NewReportService(repo, counter, m, log)
	c.service = application.NewFraudReviewService(
		transfers, reviews, application.NewTransactionQuery(repo), c.reports, application.NewExportService(m),
	)

	// 启动时以存储为准校正计数
	if _, err := c.reports.Reconcile(ctx); err != nil {
		log.Warn("initial report reconciliation failed", "error", err)
	}

	// 投影消费
	if mqCfg.Enabled() && mqCfg.GroupID != "" {
		c.consumer = mq.NewConsumer(mqCfg, log)
		if mqCfg.DeadLetter != "" {
			c.consumer.WithDeadLetter(mq.NewDeadLetterQueue(c.producer, mqCfg.DeadLetter))
		}
		c.closers = append(c.closers, c.consumer.Close)
		c.projection = consumer.NewReportProjection(c.reports, projectionWindow, log)
	}

	ok = true
	return c, nil
}

// buildAssessor 按配置创建评估客户端；未配置时所有转账进入人工审核
func buildAssessor(cfg config.RiskConfig, c *components, log *slog.Logger, m *metrics.Metrics) (domain.RiskAssessor, error) {
	var next domain.RiskAssessor
	switch cfg.Transport {
	case "":
		log.Warn("no risk assessor configured, every transfer will be held for review")
		return client.NewUnconfiguredAssessor(), nil
	case "http":
		next = client.NewHTTPAssessor(cfg.Endpoint, cfg.AssessorTimeout)
	case "grpc":
		conn, err := grpcclient.NewClient(grpcclient.ClientConfig{
			Target:            cfg.Endpoint,
			ConnTimeout:       5 * time.Second,
			KeepaliveInterval: 30 * time.Second,
		}, log, m)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, conn.Close)
		next = client.NewGRPCAssessor(conn)
	default:
		return nil, errors.New("unsupported risk transport: " + cfg.Transport)
	}

	return client.NewResilientAssessor(next, client.ResilientConfig{
		Timeout:         cfg.AssessorTimeout,
		MaxAttempts:     cfg.MaxAttempts,
		InitialBackoff:  cfg.InitialBackoff,
		MaxBackoff:      cfg.MaxBackoff,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}, log), nil
}
