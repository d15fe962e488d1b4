package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTransactions() []*Transaction {
	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	return []*Transaction{
		{ID: "t1", SenderAccountID: "ACC-1", ReceiverAccountID: "ACC-2", Amount: decimal.NewFromInt(25000),
			Description: "Invoice PAYMENT", Status: StatusFlagged, RiskScore: 70, FraudProbability: 0.65, CreatedAt: base},
		{ID: "t2", SenderAccountID: "ACC-3", ReceiverAccountID: "ACC-1", Amount: decimal.NewFromInt(15000),
			Description: "rent", Status: StatusUnderReview, RiskScore: 62, FraudProbability: 0.4, CreatedAt: base.Add(24 * time.Hour)},
		{ID: "t3", SenderAccountID: "ACC-1", ReceiverAccountID: "ACC-4", Amount: decimal.NewFromInt(45000),
			Description: "car", Status: StatusFlagged, RiskScore: 85, FraudProbability: 0.8, CreatedAt: base.Add(48 * time.Hour)},
	}
}

func ids(txns []*Transaction) []string {
	out := make([]string, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.ID)
	}
	return out
}

func TestFilter_StatusAndAmountMin(t *testing.T) {
	c := ParseFilterCriteria(RawFilter{Status: "flagged", AmountMin: "20000"}, Viewer{})
	assert.Equal(t, []string{"t1", "t3"}, ids(c.Apply(sampleTransactions())))
}

func TestFilter_EmptyCriteriaKeepsAll(t *testing.T) {
	c := ParseFilterCriteria(RawFilter{Status: "all", Direction: "all"}, Viewer{})
	assert.True(t, c.IsEmpty())
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(c.Apply(sampleTransactions())))
}

func TestFilter_Idempotent(t *testing.T) {
	viewer := Viewer{AccountID: "ACC-1"}
	criteria := []RawFilter{
		{},
		{Status: "FLAGGED"},
		{Direction: "outgoing", AmountMax: "30000"},
		{Query: "acc-4"},
		{RiskScoreMin: "65", FraudProbabilityMin: "0.5"},
		{DateFrom: "2024-01-11", DateTo: "2024-01-12"},
	}
	for _, raw := range criteria {
		c := ParseFilterCriteria(raw, viewer)
		once := c.Apply(sampleTransactions())
		twice := c.Apply(once)
		assert.Equal(t, ids(once), ids(twice), "%+v", raw)
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	in := sampleTransactions()
	snapshot := ids(in)
	c := ParseFilterCriteria(RawFilter{Status: "under_review"}, Viewer{})
	out := c.Apply(in)
	require.Len(t, out, 1)
	assert.Equal(t, snapshot, ids(in))
	assert.Equal(t, StatusUnderReview, in[1].Status)
}

func TestFilter_MalformedNumericIsPassThrough(t *testing.T) {
	c := ParseFilterCriteria(RawFilter{AmountMin: "abc", AmountMax: "1e", RiskScoreMin: "high", FraudProbabilityMin: "NaN"}, Viewer{})
	assert.Nil(t, c.AmountMin)
	assert.Nil(t, c.AmountMax)
	assert.Nil(t, c.RiskScoreMin)
	assert.Nil(t, c.FraudProbabilityMin)
	assert.Len(t, c.Apply(sampleTransactions()), 3)
}

func TestFilter_Direction(t *testing.T) {
	viewer := Viewer{AccountID: "ACC-1"}
	out := ParseFilterCriteria(RawFilter{Direction: "outgoing"}, viewer).Apply(sampleTransactions())
	assert.Equal(t, []string{"t1", "t3"}, ids(out))

	in := ParseFilterCriteria(RawFilter{Direction: "INCOMING"}, viewer).Apply(sampleTransactions())
	assert.Equal(t, []string{"t2"}, ids(in))
}

func TestFilter_QueryIsCaseInsensitive(t *testing.T) {
	out := ParseFilterCriteria(RawFilter{Query: "payment"}, Viewer{}).Apply(sampleTransactions())
	assert.Equal(t, []string{"t1"}, ids(out))

	out = ParseFilterCriteria(RawFilter{Query: "acc-3"}, Viewer{}).Apply(sampleTransactions())
	assert.Equal(t, []string{"t2"}, ids(out))
}

func TestFilter_DateBoundsInclusive(t *testing.T) {
	out := ParseFilterCriteria(RawFilter{DateFrom: "2024-01-11", DateTo: "2024-01-11"}, Viewer{}).Apply(sampleTransactions())
	assert.Equal(t, []string{"t2"}, ids(out))

	out = ParseFilterCriteria(RawFilter{DateFrom: "2024-01-10T09:00:00Z", DateTo: "2024-01-12T09:00:00Z"}, Viewer{}).Apply(sampleTransactions())
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids(out))

	out = ParseFilterCriteria(RawFilter{DateFrom: "yesterday"}, Viewer{}).Apply(sampleTransactions())
	assert.Len(t, out, 3)
}

func TestFilter_RiskThresholds(t *testing.T) {
	out := ParseFilterCriteria(RawFilter{RiskScoreMin: "70"}, Viewer{}).Apply(sampleTransactions())
	assert.Equal(t, []string{"t1", "t3"}, ids(out))

	out = ParseFilterCriteria(RawFilter{FraudProbabilityMin: "0.7"}, Viewer{}).Apply(sampleTransactions())
	assert.Equal(t, []string{"t3"}, ids(out))
}

func TestFilter_FractionalRiskScoreMinRoundsUp(t *testing.T) {
	cases := []struct {
		raw  string
		min  int
		want []string
	}{
		{"70.5", 71, []string{"t3"}},
		{"69.2", 70, []string{"t1", "t3"}},
		{" 85.0 ", 85, []string{"t3"}},
		{"1e3", 101, []string{}},
		{"-5", 0, []string{"t1", "t2", "t3"}},
	}
	for _, tc := range cases {
		c := ParseFilterCriteria(RawFilter{RiskScoreMin: tc.raw}, Viewer{})
		require.NotNil(t, c.RiskScoreMin, tc.raw)
		assert.Equal(t, tc.min, *c.RiskScoreMin, tc.raw)
		assert.Equal(t, tc.want, ids(c.Apply(sampleTransactions())), tc.raw)
	}
}
