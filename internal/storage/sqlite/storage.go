// Package sqlite provides a SQLite-backed ledger store implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sailclub/sailcredit/internal/model"
	"github.com/sailclub/sailcredit/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY,
	balance INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS credit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	party_size INTEGER NOT NULL,
	party_created_at INTEGER NOT NULL,
	party_finished_at INTEGER NOT NULL,
	prev_balance INTEGER NOT NULL,
	new_balance INTEGER NOT NULL,
	source TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_credit_log_user_time
	ON credit_log (user_id, timestamp);
`

// Storage persists the ledger in SQLite
type Storage struct {
	sqlDB *sql.DB
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite ledger store and creates the schema if needed
func Open(path string) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Storage{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle
func (s *Storage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Storage) GetBalance(ctx context.Context, userID model.UserID) (int, error) {
	var balance int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT balance FROM users WHERE user_id = ?`, int64(userID),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (s *Storage) CreateUserWithDefault(ctx context.Context, userID model.UserID) (int, error) {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (user_id, balance) VALUES (?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		int64(userID), model.StartingBalance,
	)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return s.GetBalance(ctx, userID)
}

func (s *Storage) SetBalance(ctx context.Context, userID model.UserID, balance int) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (user_id, balance) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET balance = excluded.balance`,
		int64(userID), balance,
	)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

func (s *Storage) AppendLogEntryAndSetBalance(ctx context.Context, entry model.CreditLogEntry, newBalance int) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_log (
			user_id,
			party_size,
			party_created_at,
			party_finished_at,
			prev_balance,
			new_balance,
			source,
			timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(entry.UserID),
		entry.PartySize,
		toMillis(entry.PartyCreatedAt),
		toMillis(entry.PartyFinishedAt),
		entry.PrevBalance,
		entry.NewBalance,
		string(entry.Source),
		toMillis(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (user_id, balance) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET balance = excluded.balance`,
		int64(entry.UserID), newBalance,
	)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Storage) QueryLog(ctx context.Context, userID model.UserID, since time.Time, excludeAdmin bool) ([]model.CreditLogEntry, error) {
	query := `SELECT user_id, party_size, party_created_at, party_finished_at,
		prev_balance, new_balance, source, timestamp
		FROM credit_log
		WHERE user_id = ? AND timestamp >= ?`
	args := []any{int64(userID), toMillis(since)}
	if excludeAdmin {
		query += ` AND source != ?`
		args = append(args, string(model.SourceAdmin))
	}
	query += ` ORDER BY timestamp DESC, id DESC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *Storage) QueryAllLog(ctx context.Context) ([]model.CreditLogEntry, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT user_id, party_size, party_created_at, party_finished_at,
		prev_balance, new_balance, source, timestamp
		FROM credit_log
		ORDER BY timestamp ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query all log: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]model.CreditLogEntry, error) {
	var entries []model.CreditLogEntry
	for rows.Next() {
		var (
			entry                 model.CreditLogEntry
			userID, createdAt     int64
			finishedAt, timestamp int64
			source                string
		)
		if err := rows.Scan(
			&userID,
			&entry.PartySize,
			&createdAt,
			&finishedAt,
			&entry.PrevBalance,
			&entry.NewBalance,
			&source,
			&timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entry.UserID = model.UserID(userID)
		entry.PartyCreatedAt = fromMillis(createdAt)
		entry.PartyFinishedAt = fromMillis(finishedAt)
		entry.Source = model.LogSource(source)
		entry.Timestamp = fromMillis(timestamp)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return entries, nil
}

func (s *Storage) QueryAllBalances(ctx context.Context) ([]model.UserBalance, error) {
	return s.queryBalances(ctx, `SELECT user_id, balance FROM users ORDER BY user_id ASC`)
}

func (s *Storage) QueryLeaderboard(ctx context.Context) ([]model.UserBalance, error) {
	return s.queryBalances(ctx, `SELECT user_id, balance FROM users ORDER BY balance DESC, user_id ASC`)
}

func (s *Storage) queryBalances(ctx context.Context, query string) ([]model.UserBalance, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var balances []model.UserBalance
	for rows.Next() {
		var userID int64
		var balance int
		if err := rows.Scan(&userID, &balance); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, model.UserBalance{
			UserID:  model.UserID(userID),
			Balance: balance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return balances, nil
}

func (s *Storage) ResetAllBalances(ctx context.Context, balance int) error {
	_, err := s.sqlDB.ExecContext(ctx, `UPDATE users SET balance = ?`, balance)
	if err != nil {
		return fmt.Errorf("reset balances: %w", err)
	}
	return nil
}

func (s *Storage) WipeLog(ctx context.Context) error {
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM credit_log`)
	if err != nil {
		return fmt.Errorf("wipe log: %w", err)
	}
	return nil
}
