package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/cenkalti/backoff/v5"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ScoreMethod 评分服务的 gRPC 方法全名
const ScoreMethod = "/fraudreview.risk.v1.RiskScoringService/Score"

// GRPCAssessor 以 google.protobuf.Struct 作为请求与响应调用评分服务
type GRPCAssessor struct {
	conn grpc.ClientConnInterface
}

// NewGRPCAssessor 创建 gRPC 评估客户端
func NewGRPCAssessor(conn grpc.ClientConnInterface) *GRPCAssessor {
	return &GRPCAssessor{conn: conn}
}

func (a *GRPCAssessor) Assess(ctx context.Context, req domain.AssessmentRequest) (domain.Assessment, error) {
	in, err := toStruct(req)
	if err != nil {
		return domain.Assessment{}, backoff.Permanent(err)
	}
	out := new(structpb.Struct)
	if err := a.conn.Invoke(ctx, ScoreMethod, in, out); err != nil {
		switch status.Code(err) {
		case codes.InvalidArgument, codes.Unimplemented, codes.PermissionDenied, codes.Unauthenticated:
			return domain.Assessment{}, backoff.Permanent(err)
		}
		return domain.Assessment{}, err
	}
	return fromStruct(out)
}

func toStruct(req domain.AssessmentRequest) (*structpb.Struct, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

func fromStruct(s *structpb.Struct) (domain.Assessment, error) {
	score, ok := s.GetFields()["risk_score"]
	if !ok {
		return domain.Assessment{}, backoff.Permanent(fmt.Errorf("risk service response missing risk_score"))
	}
	prob, ok := s.GetFields()["fraud_probability"]
	if !ok {
		return domain.Assessment{}, backoff.Permanent(fmt.Errorf("risk service response missing fraud_probability"))
	}
	n := score.GetNumberValue()
	if n != math.Trunc(n) {
		return domain.Assessment{}, backoff.Permanent(fmt.Errorf("risk_score %v is not an integer", n))
	}
	return domain.Assessment{RiskScore: int(n), FraudProbability: prob.GetNumberValue()}, nil
}
