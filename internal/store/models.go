package store

import "time"

// Wallet is the per-user coin account. Balance never goes below zero;
// TotalEarned only grows, and only through earn operations.
type Wallet struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Balance     int64     `json:"balance"`
	TotalEarned int64     `json:"total_earned"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Transaction is one immutable entry in the append-only coin log.
// Exactly one is written for every successful balance mutation.
type Transaction struct {
	ID          string    `json:"id"` // Using UUID for external ID
	UserID      string    `json:"user_id"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"` // "earn" or "spend"
	Action      string    `json:"action"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	TransactionTypeEarn  = "earn"
	TransactionTypeSpend = "spend"
)
