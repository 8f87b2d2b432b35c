package storage

import (
	"context"
	"time"

	"github.com/sailclub/sailcredit/internal/model"
)

// Storage defines the ledger store interface: durable balances plus the
// append-only credit history.
//
// AppendLogEntryAndSetBalance must be atomic; a balance update without its
// log entry (or vice versa) is a data-integrity violation.
type Storage interface {
	// Balance operations
	GetBalance(ctx context.Context, userID model.UserID) (int, error)
	CreateUserWithDefault(ctx context.Context, userID model.UserID) (int, error)
	SetBalance(ctx context.Context, userID model.UserID, balance int) error

	// Log operations
	AppendLogEntryAndSetBalance(ctx context.Context, entry model.CreditLogEntry, newBalance int) error
	// QueryLog returns the user's entries at or after since, newest first
	QueryLog(ctx context.Context, userID model.UserID, since time.Time, excludeAdmin bool) ([]model.CreditLogEntry, error)
	// QueryAllLog returns every entry in chronological order, for replay
	QueryAllLog(ctx context.Context) ([]model.CreditLogEntry, error)

	// Aggregate queries
	QueryAllBalances(ctx context.Context) ([]model.UserBalance, error)
	// QueryLeaderboard returns all balances sorted descending
	QueryLeaderboard(ctx context.Context) ([]model.UserBalance, error)

	// Bulk recalculation support
	ResetAllBalances(ctx context.Context, balance int) error
	WipeLog(ctx context.Context) error
}
