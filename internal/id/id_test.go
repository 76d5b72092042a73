package id

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestTransactionID(t *testing.T) {
	a := TransactionID("chase", "u1", "2025-01-03", "GITHUB", "-4.00", 0)
	b := TransactionID("chase", "u1", "2025-01-03", "GITHUB", "-4.00", 0)
	c := TransactionID("chase", "u1", "2025-01-03", "GITHUB", "-4.00", 1)
	d := TransactionID("chase", "u2", "2025-01-03", "GITHUB", "-4.00", 0)

	assert.Equal(t, a, b, "same row must map to same id")
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestBatchKey(t *testing.T) {
	tests := []struct {
		a, b []string
		same bool
	}{
		{[]string{"r1", "r2", "r3"}, []string{"r3", "r1", "r2"}, true},
		{[]string{"r1", "r2"}, []string{"r1", "r2", "r3"}, false},
		{[]string{"r1r2"}, []string{"r1", "r2"}, false},
	}
	for _, tt := range tests {
		ka, kb := BatchKey(tt.a), BatchKey(tt.b)
		if tt.same {
			assert.Equal(t, ka, kb, "%v vs %v", tt.a, tt.b)
		} else {
			assert.NotEqual(t, ka, kb, "%v vs %v", tt.a, tt.b)
		}
	}
}

func TestBatchKey_DoesNotMutateInput(t *testing.T) {
	ids := []string{"b", "a"}
	BatchKey(ids)
	assert.Equal(t, []string{"b", "a"}, ids)
}

func TestIsBatchKey(t *testing.T) {
	assert.True(t, IsBatchKey(BatchKey([]string{"x"})))
	for _, bad := range []string{"", "batch_", "batch_zz", "other_0123456789abcdef0123456789abcdef"} {
		assert.False(t, IsBatchKey(bad), "input: %s", bad)
	}
}
