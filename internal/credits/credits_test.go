package credits

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeAndRefund(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Open(1, 1)

	n, err := l.Consume(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = l.Consume(ctx, 1)
	require.ErrorIs(t, err, ErrInsufficientCredits)

	n, err = l.Refund(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGrantIsCapped(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Open(1, 45)

	n, err := l.Grant(ctx, 1, 12)
	require.NoError(t, err)
	assert.Equal(t, MaxBalance, n)

	for _, bad := range []int{0, -3, 51} {
		_, err = l.Grant(ctx, 1, bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestRedeemOnce(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Open(7, 0)

	n, err := l.Redeem(ctx, 7, "cs_test_1", "6pack", 6)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	_, err = l.Redeem(ctx, 7, "cs_test_1", "6pack", 6)
	require.ErrorIs(t, err, ErrAlreadyRedeemed)

	b, _ := l.Balance(ctx, 7)
	assert.Equal(t, 6, b)

	pack, ok := l.Redemption("cs_test_1")
	require.True(t, ok)
	assert.Equal(t, "6pack", pack)
}

func TestUnknownUser(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	_, err := l.Balance(ctx, 9)
	assert.ErrorIs(t, err, ErrUnknownUser)
	_, err = l.Consume(ctx, 9)
	assert.ErrorIs(t, err, ErrUnknownUser)
	_, err = l.Redeem(ctx, 9, "cs", "6pack", 6)
	assert.ErrorIs(t, err, ErrUnknownUser)
}
