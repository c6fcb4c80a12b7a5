package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"
	"parkwell.io/rewards-service/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dbStore, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })
	return NewService(dbStore)
}

func TestValidationRejectedBeforeStore(t *testing.T) {
	svc := newTestService(t)

	cases := []struct {
		name   string
		userID string
		amount int64
		action string
	}{
		{"empty user", "", 10, "FIRST_BOOKING"},
		{"blank user", "   ", 10, "FIRST_BOOKING"},
		{"zero amount", "u1", 0, "FIRST_BOOKING"},
		{"negative amount", "u1", -5, "FIRST_BOOKING"},
		{"empty action", "u1", 10, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Earn(tc.userID, tc.amount, tc.action, "")
			require.ErrorIs(t, err, ErrValidation)

			_, _, err = svc.Spend(tc.userID, tc.amount, tc.action, "")
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	// Nothing may have been written.
	txns, err := svc.ListTransactions("u1", 0)
	require.NoError(t, err)
	require.Empty(t, txns)
}

func TestEarnSpendRoundTrip(t *testing.T) {
	svc := newTestService(t)

	w, err := svc.GetBalance("u1")
	require.NoError(t, err)
	require.Equal(t, int64(0), w.Balance)

	w, _, err = svc.Earn("u1", 100, "FIRST_BOOKING", "First booking bonus")
	require.NoError(t, err)
	require.Equal(t, int64(100), w.Balance)

	_, _, err = svc.Spend("u1", 150, "DISCOUNT", "")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	w, _, err = svc.Spend("u1", 40, "DISCOUNT", "")
	require.NoError(t, err)
	require.Equal(t, int64(60), w.Balance)
	require.Equal(t, int64(100), w.TotalEarned)
	require.GreaterOrEqual(t, w.TotalEarned, w.Balance)

	txns, err := svc.ListTransactions("u1", 0)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	require.Equal(t, store.TransactionTypeSpend, txns[0].Type)
	require.Equal(t, store.TransactionTypeEarn, txns[1].Type)
}

func TestListTransactionsClampsLimit(t *testing.T) {
	svc := newTestService(t)

	for i := 0; i < 3; i++ {
		_, _, err := svc.Earn("u1", 1, "DAILY_CHECKIN", "")
		require.NoError(t, err)
	}

	txns, err := svc.ListTransactions("u1", 2)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	// Out-of-range limits fall back to the default cap.
	txns, err = svc.ListTransactions("u1", -1)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	txns, err = svc.ListTransactions("u1", 10_000)
	require.NoError(t, err)
	require.Len(t, txns, 3)
}
