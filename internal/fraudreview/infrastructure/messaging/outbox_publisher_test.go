package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/pkg/db"
	"github.com/wyfcoding/fraudreview/pkg/logger"
)

type sentMessage struct {
	topic, key string
	value      []byte
	headers    []kafka.Header
}

type fakeSender struct {
	sent   []sentMessage
	failOn int
	calls  int
}

func (s *fakeSender) Send(_ context.Context, topic, key string, value []byte, headers ...kafka.Header) error {
	s.calls++
	if s.failOn > 0 && s.calls == s.failOn {
		return errors.New("broker unavailable")
	}
	s.sent = append(s.sent, sentMessage{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func newOutbox(t *testing.T) *OutboxEventPublisher {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := db.Init(db.Config{Driver: "sqlite", DSN: "file:" + name + "?mode=memory&cache=shared", MaxOpenConns: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, AutoMigrate(conn.DB))
	return NewOutboxEventPublisher(conn.DB, "", logger.Discard())
}

func statusChanged(id string, to domain.Status) domain.TransactionStatusChangedEvent {
	return domain.TransactionStatusChangedEvent{
		TransactionID: id,
		ActorID:       "admin-1",
		Action:        domain.ActionBlock,
		FromStatus:    domain.StatusFlagged,
		ToStatus:      to,
		Version:       2,
		OccurredAt:    time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestOutbox_RelayInOrder(t *testing.T) {
	ctx := context.Background()
	p := newOutbox(t)

	require.NoError(t, p.PublishTransactionSubmitted(ctx, domain.TransactionSubmittedEvent{
		TransactionID: "t1", Amount: decimal.NewFromInt(10), Currency: "USD", Status: domain.StatusFlagged,
	}))
	require.NoError(t, p.PublishTransactionStatusChanged(ctx, statusChanged("t1", domain.StatusBlocked)))

	sender := &fakeSender{}
	n, err := p.ProcessOutboxMessages(ctx, sender, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, sender.sent, 2)

	first, err := DecodeEnvelope(sender.sent[0].value)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionSubmittedEventType, first.EventType)
	assert.Equal(t, DefaultTopic, sender.sent[0].topic)
	assert.Equal(t, "t1", sender.sent[0].key)

	second, err := DecodeEnvelope(sender.sent[1].value)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusChangedEventType, second.EventType)
	var ev domain.TransactionStatusChangedEvent
	require.NoError(t, json.Unmarshal(second.Payload, &ev))
	assert.Equal(t, domain.StatusBlocked, ev.ToStatus)

	n, err = p.ProcessOutboxMessages(ctx, sender, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutbox_FailureStopsBatchAndRetries(t *testing.T) {
	ctx := context.Background()
	p := newOutbox(t)
	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, p.PublishTransactionStatusChanged(ctx, statusChanged(id, domain.StatusApproved)))
	}

	sender := &fakeSender{failOn: 2}
	n, err := p.ProcessOutboxMessages(ctx, sender, 10)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	var failed OutboxMessage
	require.NoError(t, p.db.Where("transaction_id = ?", "t2").First(&failed).Error)
	assert.Equal(t, outboxPending, failed.Status)
	assert.Equal(t, 1, failed.Attempts)
	assert.Contains(t, failed.LastError, "broker unavailable")

	n, err = p.ProcessOutboxMessages(ctx, sender, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	keys := make([]string, 0, len(sender.sent))
	for _, m := range sender.sent {
		keys = append(keys, m.key)
	}
	assert.Equal(t, []string{"t1", "t2", "t3"}, keys)

	removed, err := p.CleanupProcessedMessages(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}

// dropTableSender 投递失败前删除 Outbox 表，使失败记录无法写回
type dropTableSender struct {
	p *OutboxEventPublisher
}

func (s *dropTableSender) Send(context.Context, string, string, []byte, ...kafka.Header) error {
	if err := s.p.db.Migrator().DropTable(&OutboxMessage{}); err != nil {
		return err
	}
	return errors.New("broker unavailable")
}

func TestOutbox_FailedBookkeepingIsLogged(t *testing.T) {
	ctx := context.Background()
	p := newOutbox(t)
	var buf bytes.Buffer
	p.logger = slog.New(slog.NewTextHandler(&buf, nil))
	require.NoError(t, p.PublishTransactionStatusChanged(ctx, statusChanged("t1", domain.StatusApproved)))

	_, err := p.ProcessOutboxMessages(ctx, &dropTableSender{p: p}, 10)
	require.ErrorContains(t, err, "broker unavailable")
	assert.Contains(t, buf.String(), "failed to record outbox delivery failure")
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestKafkaEventPublisher_Envelope(t *testing.T) {
	sender := &fakeSender{}
	p := NewKafkaEventPublisher(sender, "custom.topic")
	require.NoError(t, p.PublishTransactionStatusChanged(context.Background(), statusChanged("t9", domain.StatusBlocked)))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "custom.topic", sender.sent[0].topic)
	assert.Equal(t, "t9", sender.sent[0].key)
	require.Len(t, sender.sent[0].headers, 1)
	assert.Equal(t, domain.TransactionStatusChangedEventType, string(sender.sent[0].headers[0].Value))
}
