package bureau

import (
	"context"
	"time"

	"github.com/sailclub/sailcredit/internal/model"
)

// lastDailyReset returns the most recent 08:00 UTC at or before now. Reward
// lookback counts restart there each day.
func lastDailyReset(now time.Time) time.Time {
	utc := now.UTC()
	if utc.Hour() < dailyResetHourUTC {
		utc = utc.AddDate(0, 0, -1)
	}
	return time.Date(utc.Year(), utc.Month(), utc.Day(), dailyResetHourUTC, 0, 0, 0, time.UTC)
}

// partiesJoinedSinceReset counts the user's non-admin log entries since the
// last daily reset. Every party entry counts, reward or penalty; both
// represent a party joined.
func (s *Service) partiesJoinedSinceReset(ctx context.Context, userID model.UserID, now time.Time) (int, error) {
	entries, err := s.storage.QueryLog(ctx, userID, lastDailyReset(now), true)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// roundToNearestDay snaps a timestamp to the nearest day boundary
func roundToNearestDay(t time.Time) int64 {
	const day = 24 * 60 * 60
	secs := t.Unix()
	return ((secs + day/2) / day) * day
}

// flakeDaysInWindow counts the distinct calendar days inside the trailing
// flake window that contain at least one penalty entry for the user.
// Flaking twice in one day does not double the count.
func (s *Service) flakeDaysInWindow(ctx context.Context, userID model.UserID, now time.Time) (int, error) {
	entries, err := s.storage.QueryLog(ctx, userID, now.Add(-FlakeWindow), true)
	if err != nil {
		return 0, err
	}

	days := make(map[int64]struct{})
	for _, entry := range entries {
		if entry.IsPenalty() {
			days[roundToNearestDay(entry.Timestamp)] = struct{}{}
		}
	}
	return len(days), nil
}
