package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func sampleRequest() domain.AssessmentRequest {
	return domain.AssessmentRequest{
		TransactionID:     "t1",
		SenderAccountID:   "ACC-A",
		ReceiverAccountID: "ACC-B",
		Amount:            decimal.RequireFromString("120.50"),
		Currency:          "USD",
		Channel:           domain.ChannelWeb,
		IsNewPayee:        true,
		Hour:              10,
		Weekday:           1,
	}
}

func fastConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:         time.Second,
		MaxAttempts:     3,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	}
}

func TestHTTPAssessor(t *testing.T) {
	var got domain.AssessmentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/score", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"risk_score":91,"fraud_probability":0.89}`))
	}))
	defer srv.Close()

	a, err := NewHTTPAssessor(srv.URL+"/", time.Second).Assess(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.Assessment{RiskScore: 91, FraudProbability: 0.89}, a)
	assert.Equal(t, "t1", got.TransactionID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("120.5")))
	assert.True(t, got.IsNewPayee)
}

func TestHTTPAssessor_Errors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"bad request": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		},
		"missing fields": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"risk_score":10}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := NewHTTPAssessor(srv.URL, time.Second).Assess(context.Background(), sampleRequest())
			assert.Error(t, err)
		})
	}
}

func TestResilientAssessor_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	next := domain.RiskAssessorFunc(func(context.Context, domain.AssessmentRequest) (domain.Assessment, error) {
		if calls.Add(1) < 3 {
			return domain.Assessment{}, errors.New("connection reset")
		}
		return domain.Assessment{RiskScore: 40, FraudProbability: 0.2}, nil
	})
	r := NewResilientAssessor(next, fastConfig(), logger.Discard())

	a, err := r.Assess(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, 40, a.RiskScore)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilientAssessor_ExhaustedAttemptsFailClosed(t *testing.T) {
	var calls atomic.Int32
	next := domain.RiskAssessorFunc(func(context.Context, domain.AssessmentRequest) (domain.Assessment, error) {
		calls.Add(1)
		return domain.Assessment{}, errors.New("connection refused")
	})
	cfg := fastConfig()
	cfg.BreakerFailures = 10
	r := NewResilientAssessor(next, cfg, logger.Discard())

	_, err := r.Assess(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, domain.IsAssessorUnavailable(err))
	assert.ErrorIs(t, err, domain.ErrAssessorUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilientAssessor_OutOfRangeIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	next := domain.RiskAssessorFunc(func(context.Context, domain.AssessmentRequest) (domain.Assessment, error) {
		calls.Add(1)
		return domain.Assessment{RiskScore: 150, FraudProbability: 0.5}, nil
	})
	r := NewResilientAssessor(next, fastConfig(), logger.Discard())

	_, err := r.Assess(context.Background(), sampleRequest())
	assert.True(t, domain.IsAssessorUnavailable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestResilientAssessor_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	next := domain.RiskAssessorFunc(func(context.Context, domain.AssessmentRequest) (domain.Assessment, error) {
		calls.Add(1)
		return domain.Assessment{}, errors.New("down")
	})
	cfg := fastConfig()
	cfg.MaxAttempts = 1
	r := NewResilientAssessor(next, cfg, logger.Discard())

	for range 2 {
		_, err := r.Assess(context.Background(), sampleRequest())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, r.State())

	_, err := r.Assess(context.Background(), sampleRequest())
	assert.True(t, domain.IsAssessorUnavailable(err))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
}

func TestResilientAssessor_Timeout(t *testing.T) {
	next := domain.RiskAssessorFunc(func(ctx context.Context, _ domain.AssessmentRequest) (domain.Assessment, error) {
		<-ctx.Done()
		return domain.Assessment{}, ctx.Err()
	})
	cfg := fastConfig()
	cfg.Timeout = 20 * time.Millisecond
	r := NewResilientAssessor(next, cfg, logger.Discard())

	start := time.Now()
	_, err := r.Assess(context.Background(), sampleRequest())
	assert.True(t, domain.IsAssessorUnavailable(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestUnconfiguredAssessor(t *testing.T) {
	_, err := NewUnconfiguredAssessor().Assess(context.Background(), sampleRequest())
	assert.True(t, domain.IsAssessorUnavailable(err))
}

func startScoringServer(t *testing.T, handler func(*structpb.Struct) (*structpb.Struct, error)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "fraudreview.risk.v1.RiskScoringService",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Score",
			Handler: func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(structpb.Struct)
				if err := dec(in); err != nil {
					return nil, err
				}
				return handler(in)
			},
		}},
	}, struct{}{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCAssessor(t *testing.T) {
	conn := startScoringServer(t, func(in *structpb.Struct) (*structpb.Struct, error) {
		if in.GetFields()["transaction_id"].GetStringValue() != "t1" {
			return nil, status.Error(codes.InvalidArgument, "unexpected request")
		}
		return structpb.NewStruct(map[string]any{"risk_score": 77, "fraud_probability": 0.7})
	})

	a, err := NewGRPCAssessor(conn).Assess(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.Assessment{RiskScore: 77, FraudProbability: 0.7}, a)
}

func TestGRPCAssessor_InvalidArgumentIsPermanent(t *testing.T) {
	var calls atomic.Int32
	conn := startScoringServer(t, func(*structpb.Struct) (*structpb.Struct, error) {
		calls.Add(1)
		return nil, status.Error(codes.InvalidArgument, "bad features")
	})
	r := NewResilientAssessor(NewGRPCAssessor(conn), fastConfig(), logger.Discard())

	_, err := r.Assess(context.Background(), sampleRequest())
	assert.True(t, domain.IsAssessorUnavailable(err))
	assert.Equal(t, int32(1), calls.Load())
}
