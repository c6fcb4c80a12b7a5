package wallet

import (
	"errors"
	"fmt"
	"strings"

	"parkwell.io/rewards-service/internal/store"
)

const DefaultTransactionLimit = 50

// ErrValidation flags malformed input (missing user, non-positive
// amount). The operation is never attempted when it is returned.
var ErrValidation = errors.New("validation failed")

// ErrInsufficientBalance mirrors the store sentinel so callers depend
// on this package only.
var ErrInsufficientBalance = store.ErrInsufficientBalance

type Service struct {
	dbStore *store.SQLiteStore
}

func NewService(db *store.SQLiteStore) *Service {
	return &Service{dbStore: db}
}

// GetBalance returns the user's wallet, creating an empty one on first
// access. It never fails for a well-formed userID.
func (s *Service) GetBalance(userID string) (*store.Wallet, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	return s.dbStore.GetOrCreateWallet(userID)
}

// Earn credits amount coins for the named action and records the
// matching earn transaction.
func (s *Service) Earn(userID string, amount int64, action, description string) (*store.Wallet, *store.Transaction, error) {
	if err := validateOperation(userID, amount, action); err != nil {
		return nil, nil, err
	}
	return s.dbStore.Earn(userID, amount, action, description)
}

// Spend debits amount coins for the named action. Fails with
// ErrInsufficientBalance when the wallet is absent or too small;
// the balance is untouched in that case.
func (s *Service) Spend(userID string, amount int64, action, description string) (*store.Wallet, *store.Transaction, error) {
	if err := validateOperation(userID, amount, action); err != nil {
		return nil, nil, err
	}
	return s.dbStore.Spend(userID, amount, action, description)
}

// ListTransactions returns the user's transaction history, newest
// first, capped at limit (DefaultTransactionLimit when limit <= 0).
func (s *Service) ListTransactions(userID string, limit int) ([]store.Transaction, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultTransactionLimit {
		limit = DefaultTransactionLimit
	}
	return s.dbStore.GetTransactionsByUserID(userID, limit)
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return nil
}

func validateOperation(userID string, amount int64, action string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if strings.TrimSpace(action) == "" {
		return fmt.Errorf("%w: action is required", ErrValidation)
	}
	return nil
}
