// Package client 外部风险评估服务的客户端实现
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
)

type scoreResponse struct {
	RiskScore        *int     `json:"risk_score"`
	FraudProbability *float64 `json:"fraud_probability"`
}

// HTTPAssessor 通过 HTTP JSON 接口调用评分服务，POST {endpoint}/score
type HTTPAssessor struct {
	client *resty.Client
}

// NewHTTPAssessor 创建 HTTP 评估客户端
func NewHTTPAssessor(endpoint string, timeout time.Duration) *HTTPAssessor {
	c := resty.New().
		SetBaseURL(strings.TrimRight(endpoint, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &HTTPAssessor{client: c}
}

func (a *HTTPAssessor) Assess(ctx context.Context, req domain.AssessmentRequest) (domain.Assessment, error) {
	var out scoreResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/score")
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("call risk service: %w", err)
	}
	if resp.IsError() {
		statusErr := fmt.Errorf("risk service returned %s", resp.Status())
		// 4xx 表示请求本身有问题，重试无意义
		if resp.StatusCode() >= http.StatusBadRequest && resp.StatusCode() < http.StatusInternalServerError &&
			resp.StatusCode() != http.StatusTooManyRequests {
			return domain.Assessment{}, backoff.Permanent(statusErr)
		}
		return domain.Assessment{}, statusErr
	}
	if out.RiskScore == nil || out.FraudProbability == nil {
		return domain.Assessment{}, backoff.Permanent(errors.New("risk service response missing fields"))
	}
	return domain.Assessment{RiskScore: *out.RiskScore, FraudProbability: *out.FraudProbability}, nil
}

// NewUnconfiguredAssessor 未配置评分服务时使用，所有转账进入人工审核
func NewUnconfiguredAssessor() domain.RiskAssessor {
	return domain.RiskAssessorFunc(func(context.Context, domain.AssessmentRequest) (domain.Assessment, error) {
		return domain.Assessment{}, &domain.AssessorUnavailableError{Cause: errors.New("no risk assessor configured")}
	})
}
