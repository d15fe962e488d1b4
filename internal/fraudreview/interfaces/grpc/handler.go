// Package grpc 反欺诈审核的 gRPC 管理端接口，消息体统一使用 google.protobuf.Struct
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/wyfcoding/fraudreview/internal/fraudreview/application"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/pkg/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName gRPC 服务全名
const ServiceName = "fraudreview.v1.FraudReviewService"

const (
	ApplyActionMethod = "/" + ServiceName + "/ApplyAction"
	ListFlaggedMethod = "/" + ServiceName + "/ListFlagged"
	GetReportMethod   = "/" + ServiceName + "/GetReport"
)

// FraudReviewServer 服务端接口
type FraudReviewServer interface {
	ApplyAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListFlagged(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(FraudReviewServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FraudReviewServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FraudReviewServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc 服务描述
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FraudReviewServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ApplyAction", Handler: unaryHandler(ApplyActionMethod, FraudReviewServer.ApplyAction)},
		{MethodName: "ListFlagged", Handler: unaryHandler(ListFlaggedMethod, FraudReviewServer.ListFlagged)},
		{MethodName: "GetReport", Handler: unaryHandler(GetReportMethod, FraudReviewServer.GetReport)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fraudreview/v1/fraudreview.proto",
}

// RegisterFraudReviewServer 注册服务
func RegisterFraudReviewServer(s grpc.ServiceRegistrar, srv FraudReviewServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Handler gRPC 处理器
type Handler struct {
	service *application.FraudReviewService
	logger  *slog.Logger
}

// NewHandler 创建 gRPC 处理器实例
func NewHandler(service *application.FraudReviewService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// ApplyAction 审核动作
// 请求字段：transaction_id, action；审核人取自令牌 subject，未启用认证时读取 actor_id
func (h *Handler) ApplyAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	cmd := application.ApplyActionCommand{
		TransactionID: stringField(req, "transaction_id"),
		Action:        stringField(req, "action"),
		ActorID:       stringField(req, "actor_id"),
	}
	if claims, ok := middleware.ClaimsFrom(ctx); ok {
		cmd.ActorID = claims.Subject
	}

	dto, err := h.service.ApplyAction(ctx, cmd)
	if err != nil {
		h.logger.WarnContext(ctx, "gRPC ApplyAction failed", "transaction_id", cmd.TransactionID, "action", cmd.Action, "error", err, "duration", time.Since(start))
		return nil, toStatus(err)
	}
	h.logger.InfoContext(ctx, "gRPC ApplyAction successful", "transaction_id", dto.ID, "status", dto.Status, "duration", time.Since(start))
	return toStruct(dto)
}

// ListFlagged 待审核交易，请求字段与 HTTP 查询参数同名
func (h *Handler) ListFlagged(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := domain.RawFilter{
		DateFrom:            stringField(req, "date_from"),
		DateTo:              stringField(req, "date_to"),
		Status:              stringField(req, "status"),
		Direction:           stringField(req, "direction"),
		AmountMin:           stringField(req, "amount_min"),
		AmountMax:           stringField(req, "amount_max"),
		Query:               stringField(req, "q"),
		RiskScoreMin:        stringField(req, "risk_score_min"),
		FraudProbabilityMin: stringField(req, "fraud_probability_min"),
	}
	items, err := h.service.ListFlagged(ctx, viewerFrom(ctx), raw)
	if err != nil {
		h.logger.ErrorContext(ctx, "gRPC ListFlagged failed", "error", err)
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"transactions": items})
}

// GetReport 汇总指标
func (h *Handler) GetReport(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	dto, err := h.service.Report(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "gRPC GetReport failed", "error", err)
		return nil, toStatus(err)
	}
	return toStruct(dto)
}

func viewerFrom(ctx context.Context) domain.Viewer {
	claims, ok := middleware.ClaimsFrom(ctx)
	if !ok {
		return domain.Viewer{Role: domain.RoleAdmin}
	}
	return domain.Viewer{
		UserID:      claims.Subject,
		AccountID:   claims.AccountID,
		DisplayName: claims.DisplayName,
		Role:        domain.Role(claims.Role),
	}
}

// stringField 字符串字段，数值字段按 JSON 文本读取
func stringField(s *structpb.Struct, key string) string {
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	if _, isString := v.GetKind().(*structpb.Value_StringValue); isString {
		return v.GetStringValue()
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toStatus 领域错误到 gRPC 状态码
func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrAssessorUnavailable), errors.Is(err, domain.ErrCounterBusy):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
