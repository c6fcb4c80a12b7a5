package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrInsufficientBalance is returned by Spend when the wallet does not
// exist or holds fewer coins than the requested amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite allows a single writer. One connection serializes the
	// read-check-write sequence of Spend across concurrent requests.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS wallets (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT UNIQUE NOT NULL,
        balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
        total_earned INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS transactions (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        amount INTEGER NOT NULL CHECK (amount > 0),
        type TEXT NOT NULL CHECK (type IN ('earn', 'spend')),
        action TEXT NOT NULL,
        description TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES wallets (user_id)
    );

    CREATE INDEX IF NOT EXISTS idx_transactions_user_created
        ON transactions (user_id, created_at DESC);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Wallet methods

// GetOrCreateWallet returns the wallet for userID, creating an empty one
// on first access.
func (s *SQLiteStore) GetOrCreateWallet(userID string) (*Wallet, error) {
	wallet, err := s.getWallet(userID)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		return wallet, nil
	}

	now := time.Now().UTC()
	// INSERT OR IGNORE tolerates a concurrent first access for the same user.
	_, err = s.db.Exec(
		"INSERT OR IGNORE INTO wallets (user_id, balance, total_earned, created_at, updated_at) VALUES (?, 0, 0, ?, ?)",
		userID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert wallet: %w", err)
	}
	return s.getWallet(userID)
}

func (s *SQLiteStore) getWallet(userID string) (*Wallet, error) {
	var w Wallet
	err := s.db.QueryRow(
		"SELECT id, user_id, balance, total_earned, created_at, updated_at FROM wallets WHERE user_id = ?",
		userID,
	).Scan(&w.ID, &w.UserID, &w.Balance, &w.TotalEarned, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Wallet not found
		}
		return nil, fmt.Errorf("failed to query wallet: %w", err)
	}
	return &w, nil
}

// Earn credits amount to the user's wallet and appends the matching
// transaction record. Both writes commit in one database transaction.
func (s *SQLiteStore) Earn(userID string, amount int64, action, description string) (*Wallet, *Transaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin earn transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.Exec(
		"INSERT OR IGNORE INTO wallets (user_id, balance, total_earned, created_at, updated_at) VALUES (?, 0, 0, ?, ?)",
		userID, now, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	_, err = tx.Exec(
		"UPDATE wallets SET balance = balance + ?, total_earned = total_earned + ?, updated_at = ? WHERE user_id = ?",
		amount, amount, now, userID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to credit wallet: %w", err)
	}

	txn, err := appendTransaction(tx, userID, amount, TransactionTypeEarn, action, description, now)
	if err != nil {
		return nil, nil, err
	}

	wallet, err := getWalletTx(tx, userID)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit earn: %w", err)
	}
	return wallet, txn, nil
}

// Spend debits amount from the user's wallet if the balance covers it,
// appending the matching transaction record in the same database
// transaction. Returns ErrInsufficientBalance without mutating anything
// when it does not.
func (s *SQLiteStore) Spend(userID string, amount int64, action, description string) (*Wallet, *Transaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin spend transaction: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRow("SELECT balance FROM wallets WHERE user_id = ?", userID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, ErrInsufficientBalance
		}
		return nil, nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < amount {
		return nil, nil, ErrInsufficientBalance
	}

	now := time.Now().UTC()
	_, err = tx.Exec(
		"UPDATE wallets SET balance = balance - ?, updated_at = ? WHERE user_id = ?",
		amount, now, userID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to debit wallet: %w", err)
	}

	txn, err := appendTransaction(tx, userID, amount, TransactionTypeSpend, action, description, now)
	if err != nil {
		return nil, nil, err
	}

	wallet, err := getWalletTx(tx, userID)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit spend: %w", err)
	}
	return wallet, txn, nil
}

func appendTransaction(tx *sql.Tx, userID string, amount int64, txnType, action, description string, now time.Time) (*Transaction, error) {
	txn := &Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Type:        txnType,
		Action:      action,
		Description: description,
		CreatedAt:   now,
	}
	_, err := tx.Exec(
		"INSERT INTO transactions (id, user_id, amount, type, action, description, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		txn.ID, txn.UserID, txn.Amount, txn.Type, txn.Action, txn.Description, txn.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}
	return txn, nil
}

func getWalletTx(tx *sql.Tx, userID string) (*Wallet, error) {
	var w Wallet
	err := tx.QueryRow(
		"SELECT id, user_id, balance, total_earned, created_at, updated_at FROM wallets WHERE user_id = ?",
		userID,
	).Scan(&w.ID, &w.UserID, &w.Balance, &w.TotalEarned, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet in transaction: %w", err)
	}
	return &w, nil
}

// Transaction methods

// GetTransactionsByUserID returns the user's most recent transactions,
// newest first, capped at limit.
func (s *SQLiteStore) GetTransactionsByUserID(userID string, limit int) ([]Transaction, error) {
	query := `
        SELECT id, user_id, amount, type, action, description, created_at
        FROM transactions
        WHERE user_id = ?
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?
    `

	rows, err := s.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var txn Transaction
		var description sql.NullString
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Amount, &txn.Type, &txn.Action, &description, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		if description.Valid {
			txn.Description = description.String
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}
