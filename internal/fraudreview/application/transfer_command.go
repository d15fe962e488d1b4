package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/pkg/metrics"
)

// TransferSettings 提交流程的风控策略与限额
type TransferSettings struct {
	Policy            domain.Policy
	Limits            domain.TransferLimits
	HomeCurrency      string
	AllowedCurrencies []string
}

// DefaultTransferSettings 默认设置
func DefaultTransferSettings() TransferSettings {
	return TransferSettings{
		Policy:            domain.DefaultPolicy(),
		Limits:            domain.DefaultTransferLimits(),
		HomeCurrency:      "USD",
		AllowedCurrencies: []string{"USD", "EUR", "GBP"},
	}
}

const (
	msgCompleted   = "Transaction successful."
	msgFlagged     = "Transaction flagged for review."
	msgBlocked     = "Transaction flagged as fraud and blocked."
	msgHeldForRisk = "Risk assessment unavailable; transaction held for manual review."
)

// TransferCommand 处理转账提交
type TransferCommand struct {
	repo      domain.TransactionRepository
	assessor  domain.RiskAssessor
	counter   domain.ReportCounter
	publisher domain.EventPublisher
	settings  TransferSettings
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewTransferCommand 创建转账命令处理器
func NewTransferCommand(
	repo domain.TransactionRepository,
	assessor domain.RiskAssessor,
	counter domain.ReportCounter,
	publisher domain.EventPublisher,
	settings TransferSettings,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TransferCommand {
	return &TransferCommand{
		repo:      repo,
		assessor:  assessor,
		counter:   counter,
		publisher: publisher,
		settings:  settings,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// SubmitTransfer 提交转账
// 用例流程：
// 1. 校验请求与限额
// 2. 计算 24 小时统计、新收款方与跨境标记
// 3. 调用风险评估，失败时保持 UNDER_REVIEW
// 4. 按阈值确定初始状态，与提交事件在同一事务内保存
// 5. 更新汇总计数
func (c *TransferCommand) SubmitTransfer(ctx context.Context, sender domain.Viewer, cmd SubmitTransferCommand) (*TransferResultDTO, error) {
	req, err := c.parse(cmd)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(sender, c.settings.AllowedCurrencies); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	activity, err := c.repo.SenderActivity(ctx, sender.AccountID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	if err := c.settings.Limits.Check(req.Amount, activity); err != nil {
		return nil, err
	}
	prior, err := c.repo.HasPriorTransfer(ctx, sender.AccountID, req.ReceiverAccountID)
	if err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		ID:                  uuid.NewString(),
		SenderAccountID:     sender.AccountID,
		SenderName:          sender.DisplayName,
		ReceiverAccountID:   req.ReceiverAccountID,
		ReceiverName:        req.ReceiverName,
		Amount:              req.Amount,
		Currency:            req.Currency,
		Description:         req.Description,
		Channel:             req.Channel,
		AuthorizationMethod: req.AuthorizationMethod,
		IPAddress:           req.IPAddress,
		DeviceFingerprint:   req.DeviceFingerprint,
		IsInternational:     req.Currency != c.settings.HomeCurrency,
		IsNewPayee:          !prior,
		TxnCount24h:         activity.Count,
		SumAmount24h:        activity.Sum,
		Status:              domain.StatusPending,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	assessment, assessErr := c.assess(ctx, txn)
	message := msgHeldForRisk
	if assessErr != nil {
		c.logger.WarnContext(ctx, "risk assessment failed, holding transfer for review",
			"transaction_id", txn.ID, "sender", sender.AccountID, "error", assessErr)
		txn.Status = domain.StatusUnderReview
	} else {
		txn.RiskScore = assessment.RiskScore
		txn.FraudProbability = assessment.FraudProbability
		txn.Status, txn.IsFraud = c.settings.Policy.InitialStatus(assessment)
		message = messageFor(txn.Status)
	}

	if err := txn.Validate(); err != nil {
		return nil, err
	}
	event := domain.TransactionSubmittedEvent{
		TransactionID:     txn.ID,
		SenderAccountID:   txn.SenderAccountID,
		ReceiverAccountID: txn.ReceiverAccountID,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
		Status:            txn.Status,
		RiskScore:         txn.RiskScore,
		FraudProbability:  txn.FraudProbability,
		IsFraud:           txn.IsFraud,
		AssessmentFailed:  assessErr != nil,
		OccurredAt:        now,
	}

	token := beginCount(ctx, c.counter, c.logger)
	err = c.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := c.repo.Create(ctx, txn); err != nil {
			return err
		}
		return c.publisher.PublishTransactionSubmitted(ctx, event)
	})
	delta := domain.Report{}
	if err == nil {
		delta = domain.Delta(nil, txn, domain.DayStart(now))
	}
	if cerr := c.counter.Add(ctx, token, domain.DayKey(now), delta); cerr != nil {
		c.logger.WarnContext(ctx, "failed to update report counters", "transaction_id", txn.ID, "error", cerr)
	}
	if err != nil {
		return nil, err
	}
	c.metrics.RecordTransfer(string(txn.Status))

	c.logger.InfoContext(ctx, "transfer submitted",
		"transaction_id", txn.ID, "status", txn.Status, "risk_score", txn.RiskScore, "fraud_probability", txn.FraudProbability)

	return &TransferResultDTO{
		TransactionID:    txn.ID,
		Status:           string(txn.Status),
		IsFraud:          txn.IsFraud,
		Accepted:         txn.Status == domain.StatusCompleted,
		Message:          message,
		RiskScore:        txn.RiskScore,
		FraudProbability: txn.FraudProbability,
	}, nil
}

func (c *TransferCommand) assess(ctx context.Context, txn *domain.Transaction) (domain.Assessment, error) {
	start := time.Now()
	a, err := c.assessor.Assess(ctx, domain.NewAssessmentRequest(txn))
	if err == nil {
		err = a.Validate()
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	c.metrics.RecordAssessor(outcome, time.Since(start).Seconds())
	return a, err
}

func (c *TransferCommand) parse(cmd SubmitTransferCommand) (domain.TransferRequest, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(cmd.Amount))
	if err != nil {
		return domain.TransferRequest{}, domain.NewValidationError("amount", "must be a decimal number")
	}

	rawChannel := strings.TrimSpace(cmd.Channel)
	if via := strings.TrimSpace(cmd.SendVia); via != "" {
		if rawChannel != "" && !strings.EqualFold(rawChannel, via) {
			return domain.TransferRequest{}, domain.NewValidationError("channel", "channel and send_via disagree")
		}
		rawChannel = via
	}
	channel, ok := domain.ParseChannel(rawChannel)
	if !ok {
		return domain.TransferRequest{}, domain.NewValidationError("channel", "must be mobile or web")
	}
	method, ok := domain.ParseAuthorizationMethod(cmd.AuthorizationMethod)
	if !ok {
		return domain.TransferRequest{}, domain.NewValidationError("authorization_method", "must be OTP or 2FA")
	}

	return domain.TransferRequest{
		ReceiverAccountID:   strings.TrimSpace(cmd.ReceiverAccountID),
		ReceiverName:        strings.TrimSpace(cmd.ReceiverName),
		Amount:              amount,
		Currency:            strings.ToUpper(strings.TrimSpace(cmd.Currency)),
		Description:         cmd.Description,
		Channel:             channel,
		AuthorizationMethod: method,
		IPAddress:           cmd.IPAddress,
		DeviceFingerprint:   cmd.DeviceFingerprint,
	}, nil
}

func messageFor(s domain.Status) string {
	switch s {
	case domain.StatusBlocked:
		return msgBlocked
	case domain.StatusFlagged:
		return msgFlagged
	case domain.StatusCompleted:
		return msgCompleted
	default:
		return msgHeldForRisk
	}
}

// beginCount 登记计数器写入；登记失败只影响对账时机，不阻断业务写入
func beginCount(ctx context.Context, counter domain.ReportCounter, logger *slog.Logger) string {
	token, err := counter.Begin(ctx)
	if err != nil {
		logger.WarnContext(ctx, "failed to register report counter write", "error", err)
		return ""
	}
	return token
}
