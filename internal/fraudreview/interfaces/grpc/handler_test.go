package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/application"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/infrastructure/messaging"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/infrastructure/persistence/memory"
	"github.com/wyfcoding/fraudreview/pkg/logger"
	"github.com/wyfcoding/fraudreview/pkg/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const secret = "grpc-secret"

func setup(t *testing.T) (*grpc.ClientConn, domain.TransactionRepository) {
	t.Helper()
	repo := memory.NewTransactionRepository()
	counter := memory.NewReportCounter()
	log := logger.Discard()
	pub := messaging.NewLogEventPublisher(log)
	assessor := domain.RiskAssessorFunc(func(context.Context, domain.AssessmentRequest) (domain.Assessment, error) {
		return domain.Assessment{}, nil
	})
	app := application.NewFraudReviewService(
		application.NewTransferCommand(repo, assessor, counter, pub, application.DefaultTransferSettings(), nil, log),
		application.NewReviewCommand(repo, counter, pub, nil, log),
		application.NewTransactionQuery(repo),
		application.NewReportService(repo, counter, nil, log),
		application.NewExportService(nil),
	)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.GRPCRecoveryInterceptor(log),
		middleware.GRPCAuthInterceptor(middleware.NewTokenParser(secret, ""), string(domain.RoleAdmin)),
	))
	RegisterFraudReviewServer(srv, NewHandler(app, log))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, repo
}

func authed(t *testing.T, role string) context.Context {
	t.Helper()
	claims := middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "reviewer-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func seedFlagged(t *testing.T, repo domain.TransactionRepository, id string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(context.Background(), &domain.Transaction{
		ID:                id,
		SenderAccountID:   "ACC-A",
		ReceiverAccountID: "ACC-B",
		Amount:            decimal.NewFromInt(250),
		Currency:          "USD",
		Description:       "invoice " + id,
		RiskScore:         72,
		FraudProbability:  0.7,
		Status:            domain.StatusFlagged,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}))
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestApplyAction(t *testing.T) {
	conn, repo := setup(t)
	seedFlagged(t, repo, "tx-1")
	ctx := authed(t, "admin")

	out := new(structpb.Struct)
	err := conn.Invoke(ctx, ApplyActionMethod, mustStruct(t, map[string]any{"transaction_id": "tx-1", "action": "block"}), out)
	require.NoError(t, err)
	assert.Equal(t, "BLOCKED", out.GetFields()["status"].GetStringValue())
	assert.True(t, out.GetFields()["is_fraud"].GetBoolValue())

	trail, err := repo.ListReviewActions(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "reviewer-7", trail[0].ActorID)

	err = conn.Invoke(ctx, ApplyActionMethod, mustStruct(t, map[string]any{"transaction_id": "tx-1", "action": "approve"}), out)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	err = conn.Invoke(ctx, ApplyActionMethod, mustStruct(t, map[string]any{"transaction_id": "nope", "action": "approve"}), out)
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = conn.Invoke(ctx, ApplyActionMethod, mustStruct(t, map[string]any{"transaction_id": "tx-1", "action": "shrug"}), out)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAuth(t *testing.T) {
	conn, _ := setup(t)
	out := new(structpb.Struct)

	err := conn.Invoke(context.Background(), GetReportMethod, &structpb.Struct{}, out)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	err = conn.Invoke(authed(t, "customer"), GetReportMethod, &structpb.Struct{}, out)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestListFlaggedAndReport(t *testing.T) {
	conn, repo := setup(t)
	seedFlagged(t, repo, "tx-1")
	seedFlagged(t, repo, "tx-2")
	ctx := authed(t, "admin")

	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, ListFlaggedMethod, mustStruct(t, map[string]any{"q": "invoice tx-2"}), out))
	list := out.GetFields()["transactions"].GetListValue().GetValues()
	require.Len(t, list, 1)
	assert.Equal(t, "tx-2", list[0].GetStructValue().GetFields()["id"].GetStringValue())

	require.NoError(t, conn.Invoke(ctx, ListFlaggedMethod, mustStruct(t, map[string]any{"risk_score_min": 80}), out))
	assert.Empty(t, out.GetFields()["transactions"].GetListValue().GetValues())

	report := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, GetReportMethod, &structpb.Struct{}, report))
	assert.Contains(t, report.GetFields(), "fraud_rate")
}

func TestStringField(t *testing.T) {
	s := mustStruct(t, map[string]any{"a": "x", "n": 75, "f": 0.5})
	assert.Equal(t, "x", stringField(s, "a"))
	assert.Equal(t, "75", stringField(s, "n"))
	assert.Equal(t, "0.5", stringField(s, "f"))
	assert.Empty(t, stringField(s, "missing"))
}
