package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
)

func newCounter(t *testing.T) (*reportCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReportCounter(client).(*reportCounter), mr
}

func fixed(r domain.Report) func(context.Context) (domain.Report, error) {
	return func(context.Context) (domain.Report, error) { return r, nil }
}

func TestReportCounter_AddLoad(t *testing.T) {
	ctx := context.Background()
	c, mr := newCounter(t)

	r, err := c.Load(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, domain.Report{}, r)

	require.NoError(t, c.Add(ctx, "", "2024-05-01", domain.Report{Total: 1, UnderReview: 1, Today: 1}))
	require.NoError(t, c.Add(ctx, "", "2024-05-01", domain.Report{Total: 1, BlockedOrFraud: 1, Today: 1}))
	require.NoError(t, c.Add(ctx, "", "2024-05-01", domain.Report{UnderReview: -1, BlockedOrFraud: 1}))

	r, err = c.Load(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, domain.Report{Total: 2, BlockedOrFraud: 2, Today: 2}, r)
	assert.Equal(t, 1.0, r.FraudRate())

	r, err = c.Load(ctx, "2024-05-02")
	require.NoError(t, err)
	assert.Zero(t, r.Today)
	assert.Equal(t, int64(2), r.Total)

	mr.FastForward(49 * time.Hour)
	r, err = c.Load(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Zero(t, r.Today)
}

func TestReportCounter_Reset(t *testing.T) {
	ctx := context.Background()
	c, _ := newCounter(t)
	require.NoError(t, c.Add(ctx, "", "2024-05-01", domain.Report{Total: 10, UnderReview: 4}))

	want := domain.Report{Total: 3, UnderReview: 1, BlockedOrFraud: 1, Today: 2}
	got, err := c.Reset(ctx, "2024-05-01", fixed(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	r, err := c.Load(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, want, r)
}

func TestReportCounter_ResetWaitsForInflightWrites(t *testing.T) {
	ctx := context.Background()
	c, _ := newCounter(t)

	token, err := c.Begin(ctx)
	require.NoError(t, err)
	_, err = c.Reset(ctx, "2024-05-01", fixed(domain.Report{Total: 99}))
	assert.ErrorIs(t, err, domain.ErrCounterBusy)

	require.NoError(t, c.Add(ctx, token, "2024-05-01", domain.Report{Total: 1, Today: 1}))
	r, err := c.Reset(ctx, "2024-05-01", fixed(domain.Report{Total: 1, Today: 1}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Total)
}

func TestReportCounter_ResetAbortsWhenWriteLandsDuringRecompute(t *testing.T) {
	ctx := context.Background()
	c, _ := newCounter(t)

	_, err := c.Reset(ctx, "2024-05-01", func(ctx context.Context) (domain.Report, error) {
		token, err := c.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, c.Add(ctx, token, "2024-05-01", domain.Report{Total: 1, Today: 1}))
		return domain.Report{}, nil
	})
	assert.ErrorIs(t, err, domain.ErrCounterBusy)

	r, err := c.Load(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, domain.Report{Total: 1, Today: 1}, r)
}

func TestReportCounter_ExpiredRegistrationIsDropped(t *testing.T) {
	ctx := context.Background()
	c, _ := newCounter(t)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return start }

	_, err := c.Begin(ctx)
	require.NoError(t, err)

	c.now = func() time.Time { return start.Add(time.Minute) }
	_, err = c.Reset(ctx, "2024-05-01", fixed(domain.Report{Total: 4}))
	require.NoError(t, err)
}
