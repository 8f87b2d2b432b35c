package bureau

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sailclub/sailcredit/internal/model"
)

// Recalculate resets every user to the starting balance, wipes the log, and
// replays the saved history through the current formulas. Used by tooling
// after a formula change; never runs while parties are live.
func (s *Service) Recalculate(ctx context.Context) error {
	history, err := s.storage.QueryAllLog(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	if err := s.storage.ResetAllBalances(ctx, model.StartingBalance); err != nil {
		return fmt.Errorf("reset balances: %w", err)
	}

	if err := s.storage.WipeLog(ctx); err != nil {
		return fmt.Errorf("wipe log: %w", err)
	}

	for _, entry := range history {
		var err error
		switch {
		case entry.Source == model.SourceAdmin:
			_, err = s.adminAdjustAt(ctx, entry.UserID, entry.Delta(), entry.Timestamp)
		case entry.IsPenalty():
			_, err = s.flakeUser(ctx, entry.UserID, entry.PartySize,
				entry.PartyCreatedAt, entry.PartyFinishedAt, entry.Timestamp)
		default:
			_, err = s.creditUser(ctx, entry.UserID, entry.PartySize,
				entry.PartyCreatedAt, entry.PartyFinishedAt, entry.Timestamp)
		}
		if err != nil {
			return fmt.Errorf("replay entry for user %d: %w", entry.UserID, err)
		}
	}

	s.logger.Info("recalculation complete", slog.Int("entries_replayed", len(history)))
	return nil
}
