package model

import "time"

// UserID uniquely identifies a participant across the system.
// Chat-platform snowflake ids fit in an unsigned 64-bit integer.
type UserID uint64

// StartingBalance is the SSC every user is seeded with
const StartingBalance = 1000

// LogSource distinguishes formula-driven entries from manual corrections
type LogSource string

const (
	SourceParty LogSource = "PARTY"
	SourceAdmin LogSource = "ADMIN"
)

// UserBalance is a user's current credit standing
type UserBalance struct {
	UserID  UserID
	Balance int
}

// CreditLogEntry is one immutable fact in the append-only credit history.
// Entries are never updated or deleted outside of bulk recalculation.
type CreditLogEntry struct {
	UserID          UserID
	PartySize       int
	PartyCreatedAt  time.Time
	PartyFinishedAt time.Time
	PrevBalance     int
	NewBalance      int
	Source          LogSource
	Timestamp       time.Time
}

// Delta returns the balance change this entry recorded
func (e CreditLogEntry) Delta() int {
	return e.NewBalance - e.PrevBalance
}

// IsPenalty reports whether this entry recorded a balance decrease
func (e CreditLogEntry) IsPenalty() bool {
	return e.Delta() < 0
}

// CreditResult reports one applied balance change back to the caller
type CreditResult struct {
	UserID UserID
	Old    int
	New    int
	Delta  int
}
