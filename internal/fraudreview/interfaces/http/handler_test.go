package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/application"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/infrastructure/messaging"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/infrastructure/persistence/memory"
	"github.com/wyfcoding/fraudreview/pkg/logger"
	"github.com/wyfcoding/fraudreview/pkg/middleware"
)

const testSecret = "handler-secret"

func init() { gin.SetMode(gin.TestMode) }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Details string          `json:"details"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	router *gin.Engine
	repo   domain.TransactionRepository
	score  int
	prob   float64
	down   bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: memory.NewTransactionRepository(), score: 10, prob: 0.05}
	log := logger.Discard()
	counter := memory.NewReportCounter()
	pub := messaging.NewLogEventPublisher(log)
	assessor := domain.RiskAssessorFunc(func(ctx context.Context, req domain.AssessmentRequest) (domain.Assessment, error) {
		if f.down {
			return domain.Assessment{}, &domain.AssessorUnavailableError{Cause: errors.New("connection refused")}
		}
		return domain.Assessment{RiskScore: f.score, FraudProbability: f.prob}, nil
	})

	app := application.NewFraudReviewService(
		application.NewTransferCommand(f.repo, assessor, counter, pub, application.DefaultTransferSettings(), nil, log),
		application.NewReviewCommand(f.repo, counter, pub, nil, log),
		application.NewTransactionQuery(f.repo),
		application.NewReportService(f.repo, counter, nil, log),
		application.NewExportService(nil),
	)

	r := gin.New()
	r.Use(middleware.RequestContext(), middleware.Recovery(log))
	NewHandler(app, log).RegisterRoutes(r, middleware.JWTAuth(middleware.NewTokenParser(testSecret, "")))
	f.router = r
	return f
}

func token(t *testing.T, sub, account, role string) string {
	t.Helper()
	claims := middleware.Claims{
		AccountID:   account,
		DisplayName: strings.ToUpper(sub[:1]) + sub[1:],
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (f *fixture) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func transfer(receiver, amount string) map[string]string {
	return map[string]string{
		"receiver_account_id":  receiver,
		"receiver_name":        "Bob",
		"amount":               amount,
		"currency":             "USD",
		"description":          "rent",
		"send_via":             "web",
		"authorization_method": "OTP",
	}
}

func TestSubmitTransfer(t *testing.T) {
	f := newFixture(t)
	alice := token(t, "alice", "ACC-ALICE", "customer")

	w := f.do(t, http.MethodPost, "/api/v1/transfers", alice, transfer("ACC-BOB", "120.50"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result application.TransferResultDTO
	decode(t, w, &result)
	assert.True(t, result.Accepted)
	assert.Equal(t, "COMPLETED", result.Status)

	stored, err := f.repo.Get(context.Background(), result.TransactionID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.DeviceFingerprint)
	assert.NotEmpty(t, stored.IPAddress)
	assert.Equal(t, "ACC-ALICE", stored.SenderAccountID)
}

func TestSubmitTransfer_Errors(t *testing.T) {
	f := newFixture(t)
	alice := token(t, "alice", "ACC-ALICE", "customer")

	w := f.do(t, http.MethodPost, "/api/v1/transfers", "", transfer("ACC-BOB", "10"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/transfers", alice, transfer("ACC-ALICE", "10"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/transfers", alice, transfer("ACC-BOB", "-5"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "amount", decode(t, w, nil).Details)
}

func TestSubmitTransfer_AssessorDownHoldsForReview(t *testing.T) {
	f := newFixture(t)
	f.down = true
	w := f.do(t, http.MethodPost, "/api/v1/transfers", token(t, "alice", "ACC-ALICE", "customer"), transfer("ACC-BOB", "99"))
	require.Equal(t, http.StatusOK, w.Code)

	var result application.TransferResultDTO
	decode(t, w, &result)
	assert.False(t, result.Accepted)
	assert.Equal(t, "UNDER_REVIEW", result.Status)
}

func TestReviewFlow(t *testing.T) {
	f := newFixture(t)
	f.score, f.prob = 70, 0.7
	alice := token(t, "alice", "ACC-ALICE", "customer")
	adm := token(t, "admin1", "", "admin")

	w := f.do(t, http.MethodPost, "/api/v1/transfers", alice, transfer("ACC-BOB", "500"))
	var result application.TransferResultDTO
	decode(t, w, &result)
	require.Equal(t, "FLAGGED", result.Status)

	w = f.do(t, http.MethodGet, "/admin/transactions/flagged", adm, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/admin/transactions/flagged", alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/admin/transactions/flagged", adm, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var flagged []application.TransactionDTO
	decode(t, w, &flagged)
	require.Len(t, flagged, 1)
	assert.Equal(t, result.TransactionID, flagged[0].ID)

	actionPath := fmt.Sprintf("/api/v1/admin/transactions/%s/action", result.TransactionID)
	w = f.do(t, http.MethodPost, actionPath, adm, map[string]string{"action": "approve"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dto application.TransactionDTO
	decode(t, w, &dto)
	assert.Equal(t, "APPROVED", dto.Status)

	w = f.do(t, http.MethodPost, actionPath, adm, map[string]string{"action": "block"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, actionPath, adm, map[string]string{"action": "escalate"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/admin/transactions/missing/action", adm, map[string]string{"action": "approve"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/transactions/%s/audit", result.TransactionID), adm, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var audit []application.ReviewActionDTO
	decode(t, w, &audit)
	require.Len(t, audit, 1)
	assert.Equal(t, "admin1", audit[0].ActorID)
	assert.Equal(t, "FLAGGED", audit[0].FromStatus)

	w = f.do(t, http.MethodGet, "/api/v1/admin/reports/kpi", adm, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report application.ReportDTO
	decode(t, w, &report)
	assert.Equal(t, int64(1), report.TotalTransactions)
	assert.Equal(t, int64(0), report.UnderReview)

	w = f.do(t, http.MethodPost, "/api/v1/admin/reports/reconcile", adm, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec application.ReconcileResultDTO
	decode(t, w, &rec)
	assert.False(t, rec.Drifted)
}

func TestListTransactions_FilterAndPaginate(t *testing.T) {
	f := newFixture(t)
	alice := token(t, "alice", "ACC-ALICE", "customer")
	bob := token(t, "bob", "ACC-BOB", "customer")

	for _, amt := range []string{"10", "20", "30"} {
		w := f.do(t, http.MethodPost, "/api/v1/transfers", alice, transfer("ACC-BOB", amt))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/v1/transactions?amount_min=15", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []application.TransactionDTO
	decode(t, w, &items)
	assert.Len(t, items, 2)

	w = f.do(t, http.MethodGet, "/api/v1/transactions?page=2&page_size=2", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data       []application.TransactionDTO `json:"data"`
		Pagination struct {
			Total int64 `json:"total"`
			Pages int64 `json:"pages"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, int64(3), page.Pagination.Total)
	assert.Equal(t, int64(2), page.Pagination.Pages)
	assert.Equal(t, "incoming", page.Data[0].Direction)

	w = f.do(t, http.MethodGet, "/api/v1/transactions", token(t, "carol", "ACC-CAROL", "customer"), nil)
	items = nil
	decode(t, w, &items)
	assert.Empty(t, items)
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	alice := token(t, "alice", "ACC-ALICE", "customer")
	w := f.do(t, http.MethodPost, "/api/v1/transfers", alice, transfer("ACC-BOB", "42"))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/transactions/export", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=\"transactions_")

	rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, application.ExportColumns, rows[0])
	assert.Equal(t, "Outgoing", rows[1][2])

	w = f.do(t, http.MethodGet, "/api/v1/transactions/export?format=pdf", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "format", decode(t, w, nil).Details)

	w = f.do(t, http.MethodGet, "/api/v1/admin/transactions/export?format=xlsx", token(t, "admin1", "", "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, application.FormatXLSX.ContentType(), w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(domain.NewValidationError("x", "bad")))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(&domain.AssessorUnavailableError{Cause: errors.New("down")}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
	assert.Equal(t, http.StatusConflict, StatusFor(fmt.Errorf("wrap: %w", domain.ErrConcurrencyConflict)))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(fmt.Errorf("reconcile: %w", domain.ErrCounterBusy)))
}
