package redis

import (
	"fmt"

	"github.com/sailclub/sailcredit/internal/model"
)

// Key prefix for all ledger data
const keyPrefix = "sailcredit"

// balancesKey returns the Redis key for the ZSET of user balances.
// Scores are balances, so the leaderboard is a reverse range over this set.
func balancesKey() string {
	return fmt.Sprintf("%s:balances", keyPrefix)
}

// userLogKey returns the Redis key for a user's credit history LIST.
// Entries are LPUSHed, so index 0 is the newest.
func userLogKey(userID model.UserID) string {
	return fmt.Sprintf("%s:log:%d", keyPrefix, userID)
}

// logIndexKey returns the Redis key for the SET of users that have log entries
func logIndexKey() string {
	return fmt.Sprintf("%s:idx:log_users", keyPrefix)
}
