package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/infrastructure/persistence/memory"
	"github.com/wyfcoding/fraudreview/pkg/logger"
)

var fixedNow = time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC)

var (
	alice = domain.Viewer{UserID: "u-alice", AccountID: "ACC-ALICE", DisplayName: "Alice", Role: domain.RoleCustomer}
	admin = domain.Viewer{UserID: "admin1", DisplayName: "Admin", Role: domain.RoleAdmin}
)

type recordingPublisher struct {
	mu        sync.Mutex
	fail      error
	submitted []domain.TransactionSubmittedEvent
	changed   []domain.TransactionStatusChangedEvent
}

func (p *recordingPublisher) failWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *recordingPublisher) PublishTransactionSubmitted(ctx context.Context, e domain.TransactionSubmittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.submitted = append(p.submitted, e)
	return nil
}

func (p *recordingPublisher) PublishTransactionStatusChanged(ctx context.Context, e domain.TransactionStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.changed = append(p.changed, e)
	return nil
}

func fixedAssessor(score int, prob float64) domain.RiskAssessor {
	return domain.RiskAssessorFunc(func(ctx context.Context, req domain.AssessmentRequest) (domain.Assessment, error) {
		return domain.Assessment{RiskScore: score, FraudProbability: prob}, nil
	})
}

var errAssessorDown = errors.New("connection refused")

func failingAssessor() domain.RiskAssessor {
	return domain.RiskAssessorFunc(func(ctx context.Context, req domain.AssessmentRequest) (domain.Assessment, error) {
		return domain.Assessment{}, &domain.AssessorUnavailableError{Cause: errAssessorDown}
	})
}

type testApp struct {
	repo      domain.TransactionRepository
	counter   domain.ReportCounter
	publisher *recordingPublisher
	transfers *TransferCommand
	reviews   *ReviewCommand
	reports   *ReportService
	service   *FraudReviewService
}

func newTestApp(assessor domain.RiskAssessor) *testApp {
	return newTestAppWithRepo(memory.NewTransactionRepository(), assessor)
}

func newTestAppWithRepo(repo domain.TransactionRepository, assessor domain.RiskAssessor) *testApp {
	counter := memory.NewReportCounter()
	pub := &recordingPublisher{}
	log := logger.Discard()
	clock := func() time.Time { return fixedNow }

	transfers := NewTransferCommand(repo, assessor, counter, pub, DefaultTransferSettings(), nil, log)
	transfers.now = clock
	reviews := NewReviewCommand(repo, counter, pub, nil, log)
	reviews.now = clock
	reports := NewReportService(repo, counter, nil, log)
	reports.now = clock

	return &testApp{
		repo:      repo,
		counter:   counter,
		publisher: pub,
		transfers: transfers,
		reviews:   reviews,
		reports:   reports,
		service:   NewFraudReviewService(transfers, reviews, NewTransactionQuery(repo), reports, NewExportService(nil)),
	}
}

func transferTo(receiver, amount string) SubmitTransferCommand {
	return SubmitTransferCommand{
		ReceiverAccountID:   receiver,
		ReceiverName:        "Receiver " + receiver,
		Amount:              amount,
		Currency:            "USD",
		Description:         "test transfer",
		Channel:             "web",
		AuthorizationMethod: "OTP",
	}
}

// seed 直接写入指定状态的交易
func seed(repo domain.TransactionRepository, txn *domain.Transaction) *domain.Transaction {
	if txn.Version == 0 {
		txn.Version = 1
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = fixedNow.Add(-time.Hour)
	}
	if txn.Currency == "" {
		txn.Currency = "USD"
	}
	if err := repo.Create(context.Background(), txn); err != nil {
		panic(err)
	}
	return txn
}
