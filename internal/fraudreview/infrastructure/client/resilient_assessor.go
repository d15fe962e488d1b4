package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
)

// ResilientConfig 调用评分服务的超时、重试与熔断参数
type ResilientConfig struct {
	Timeout         time.Duration
	MaxAttempts     uint
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// DefaultResilientConfig 默认参数
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:         2 * time.Second,
		MaxAttempts:     3,
		InitialBackoff:  50 * time.Millisecond,
		MaxBackoff:      500 * time.Millisecond,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// ResilientAssessor 为评估调用加上总超时、有限重试和熔断，所有失败统一为 AssessorUnavailableError
type ResilientAssessor struct {
	next    domain.RiskAssessor
	cfg     ResilientConfig
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewResilientAssessor 包装一个评估客户端
func NewResilientAssessor(next domain.RiskAssessor, cfg ResilientConfig, logger *slog.Logger) *ResilientAssessor {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultResilientConfig().BreakerFailures
	}
	r := &ResilientAssessor{next: next, cfg: cfg, logger: logger}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "risk-assessor",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return r
}

func (r *ResilientAssessor) Assess(ctx context.Context, req domain.AssessmentRequest) (domain.Assessment, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	out, err := r.breaker.Execute(func() (any, error) {
		return r.retry(ctx, req)
	})
	if err != nil {
		if domain.IsAssessorUnavailable(err) {
			return domain.Assessment{}, err
		}
		return domain.Assessment{}, &domain.AssessorUnavailableError{Cause: err}
	}
	return out.(domain.Assessment), nil
}

func (r *ResilientAssessor) retry(ctx context.Context, req domain.AssessmentRequest) (domain.Assessment, error) {
	eb := backoff.NewExponentialBackOff()
	if r.cfg.InitialBackoff > 0 {
		eb.InitialInterval = r.cfg.InitialBackoff
	}
	if r.cfg.MaxBackoff > 0 {
		eb.MaxInterval = r.cfg.MaxBackoff
	}

	attempt := 0
	return backoff.Retry(ctx, func() (domain.Assessment, error) {
		attempt++
		a, err := r.next.Assess(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return a, backoff.Permanent(err)
			}
			return a, err
		}
		if verr := a.Validate(); verr != nil {
			return a, backoff.Permanent(verr)
		}
		return a, nil
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(r.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.WarnContext(ctx, "risk assessment attempt failed",
				"transaction_id", req.TransactionID, "attempt", attempt, "retry_in", wait, "error", err)
		}),
	)
}

// State 熔断器当前状态
func (r *ResilientAssessor) State() gobreaker.State {
	return r.breaker.State()
}
