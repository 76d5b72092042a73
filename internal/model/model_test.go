package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		input string
		want  Frequency
	}{
		{"weekly", Weekly},
		{"Monthly", Monthly},
		{" quarterly ", Quarterly},
		{"yearly", Annual},
		{"fortnightly", Biweekly},
		{"30", Monthly},
		{"45", Frequency(45)},
		{"", FrequencyNone},
	}
	for _, tt := range tests {
		got, err := ParseFrequency(tt.input)
		require.NoError(t, err, "input: %q", tt.input)
		assert.Equal(t, tt.want, got, "ParseFrequency(%q)", tt.input)
	}

	_, err := ParseFrequency("sometimes")
	assert.Error(t, err)
	_, err = ParseFrequency("-3")
	assert.Error(t, err)
}

func TestFrequencyString(t *testing.T) {
	assert.Equal(t, "monthly", Monthly.String())
	assert.Equal(t, "annual", Annual.String())
	assert.Equal(t, "every 45 days", Frequency(45).String())
	assert.Equal(t, 14*24*time.Hour, Biweekly.Period())
}

func TestClampMultiplier(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-4, 1},
		{0, 1},
		{1, 1},
		{7, 7},
		{10, 10},
		{11, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampMultiplier(tt.in).Int(), "ClampMultiplier(%d)", tt.in)
	}
	var zero Multiplier
	assert.Equal(t, 1, zero.Int())
	assert.True(t, ClampMultiplier(3).Decimal().Equal(decimal.NewFromInt(3)))
}

func TestRoundingRuleUnit(t *testing.T) {
	u, ok := RoundNearest2.Unit()
	require.True(t, ok)
	assert.True(t, u.Equal(decimal.NewFromInt(2)))

	_, ok = RoundingRule("nearest-3").Unit()
	assert.False(t, ok)
}

func TestCadenceNext(t *testing.T) {
	last := time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC), CadenceDaily.Next(last))
	assert.Equal(t, time.Date(2025, 2, 7, 9, 0, 0, 0, time.UTC), CadenceWeekly.Next(last))
	assert.Equal(t, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), CadenceMonthly.Next(last))
	assert.False(t, Cadence("hourly").Valid())
}

func TestTransactionValidate(t *testing.T) {
	ok := Transaction{
		ID:        "t1",
		UserID:    "u1",
		Timestamp: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
		Amount:    decimal.RequireFromString("-4.30"),
		Merchant:  "Coffee",
	}
	require.NoError(t, ok.Validate())
	assert.True(t, ok.IsDebit())
	assert.Equal(t, "4.3", ok.Magnitude().String())

	noAmount := ok
	noAmount.Amount = decimal.Zero
	assert.ErrorIs(t, noAmount.Validate(), ErrMalformedTransaction)

	noTime := ok
	noTime.Timestamp = time.Time{}
	assert.ErrorIs(t, noTime.Validate(), ErrMalformedTransaction)

	noMerchant := ok
	noMerchant.Merchant = ""
	assert.ErrorIs(t, noMerchant.Validate(), ErrMalformedTransaction)
}

func TestRoundUpStatusCountsTowardCap(t *testing.T) {
	assert.True(t, RoundUpPending.CountsTowardCap())
	assert.True(t, RoundUpTransferred.CountsTowardCap())
	assert.False(t, RoundUpCancelled.CountsTowardCap())
	assert.False(t, RoundUpFailed.CountsTowardCap())
}
