// Package bureau implements the credit bureau: the scoring engine that
// computes SSC rewards and penalties and writes them through the ledger
// store.
package bureau

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sailclub/sailcredit/internal/dependencies/clock"
	"github.com/sailclub/sailcredit/internal/model"
	"github.com/sailclub/sailcredit/internal/storage"
)

const (
	// BaseReward is the SSC a user receives for completing a party by default
	BaseReward = 20

	// BasePenalty is the SSC deducted for flaking on a party by default
	BasePenalty = -200

	// FlakeWindow is how far back flake incidents are counted
	FlakeWindow = 30 * 24 * time.Hour

	// LongWaitThreshold is the party age beyond which the penalty scales up
	LongWaitThreshold = 30 * time.Minute

	// SmallPartySize is the size at or below which rewards are reduced
	SmallPartySize = 2

	// smallPartyRatio is the reward multiplier for small parties
	smallPartyRatio = 0.6

	// dailyResetHourUTC is the UTC hour at which the reward lookback resets
	dailyResetHourUTC = 8
)

// AppliedRatio is one multiplicative step of a scoring formula, recorded in
// order for auditing.
type AppliedRatio struct {
	Name  string
	Value float64
}

// Breakdown reports a computed delta together with the ordered ratios that
// produced it.
type Breakdown struct {
	Base   int
	Ratios []AppliedRatio
	Delta  int
}

// Service computes and applies SSC changes
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a new bureau Service
func New(store storage.Storage, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		storage: store,
		clock:   clk,
		logger:  logger.With(slog.String("component", "bureau")),
	}
}

// Credit computes the SSC reward for a user completing a party.
//
// Fractional magnitudes round away from zero at every step, so the result is
// always at least 1 for a positive intermediate value.
func (s *Service) Credit(userID model.UserID, currentBalance, partiesJoined, partySize int) Breakdown {
	bd := Breakdown{Base: BaseReward}

	// Diminishing returns for repeat parties inside the lookback window:
	// first party of the day pays full, each later one pays less.
	dim := 1.0 / float64(2*partiesJoined+1)
	reward := math.Ceil(BaseReward * dim)
	bd.Ratios = append(bd.Ratios, AppliedRatio{Name: "diminishing", Value: dim})

	// Progressive tax: f(StartingBalance) = 1, f(inf) -> 0
	if currentBalance > model.StartingBalance {
		tax := float64(model.StartingBalance) * float64(model.StartingBalance) /
			(float64(currentBalance) * float64(currentBalance))
		reward = math.Ceil(reward * tax)
		bd.Ratios = append(bd.Ratios, AppliedRatio{Name: "tax", Value: tax})
	}

	// Small parties pay out less
	if partySize <= SmallPartySize {
		reward = math.Ceil(reward * smallPartyRatio)
		bd.Ratios = append(bd.Ratios, AppliedRatio{Name: "small_party", Value: smallPartyRatio})
	}

	bd.Delta = int(reward)
	s.logBreakdown("CREDIT", userID, bd)
	return bd
}

// Debit computes the SSC penalty for a user convicted of flaking. The delta
// is non-positive and its magnitude never exceeds currentBalance.
func (s *Service) Debit(userID model.UserID, currentBalance, flakeDays int, partyAge time.Duration, partySize int) Breakdown {
	bd := Breakdown{Base: BasePenalty}
	penalty := float64(BasePenalty)

	// Fewer people affected, smaller fine
	sizeRatio := 1 - 0.2*(float64(partySize)/5)
	penalty *= sizeRatio
	bd.Ratios = append(bd.Ratios, AppliedRatio{Name: "size", Value: sizeRatio})

	// The longer everybody waited, the worse the flake
	if partyAge > LongWaitThreshold {
		ageRatio := partyAge.Seconds() / LongWaitThreshold.Seconds()
		penalty *= ageRatio
		bd.Ratios = append(bd.Ratios, AppliedRatio{Name: "age", Value: ageRatio})
	}

	// Each distinct day with a prior flake in the window raises the fine 50%
	flakeRatio := 0.5*float64(flakeDays) + 1
	penalty *= flakeRatio
	bd.Ratios = append(bd.Ratios, AppliedRatio{Name: "flake", Value: flakeRatio})

	// Tax break below the starting balance: f(StartingBalance) = 1, f(0) = 0
	if currentBalance < model.StartingBalance {
		taxBreak := float64(currentBalance) * float64(currentBalance) /
			(float64(model.StartingBalance) * float64(model.StartingBalance))
		penalty *= taxBreak
		bd.Ratios = append(bd.Ratios, AppliedRatio{Name: "tax_break", Value: taxBreak})
	}

	// Round the magnitude up (more negative), then clamp so the balance
	// cannot go below zero.
	delta := int(math.Floor(penalty))
	if -delta > currentBalance {
		delta = -currentBalance
	}
	bd.Delta = delta
	s.logBreakdown("DEBIT", userID, bd)
	return bd
}

func (s *Service) logBreakdown(op string, userID model.UserID, bd Breakdown) {
	attrs := []any{
		slog.String("op", op),
		slog.Uint64("user_id", uint64(userID)),
		slog.Int("base", bd.Base),
		slog.Int("delta", bd.Delta),
	}
	for _, r := range bd.Ratios {
		attrs = append(attrs, slog.Float64("ratio_"+r.Name, r.Value))
	}
	s.logger.Info("ssc computed", attrs...)
}

// GetOrCreateBalance returns the user's balance, seeding a new user with the
// starting balance.
func (s *Service) GetOrCreateBalance(ctx context.Context, userID model.UserID) (int, error) {
	balance, err := s.storage.GetBalance(ctx, userID)
	if err == nil {
		return balance, nil
	}
	return s.storage.CreateUserWithDefault(ctx, userID)
}

// ProcessPartyCompletion rewards every member of a completed party once and
// records each change in the ledger. Returns one result per member in join
// order.
func (s *Service) ProcessPartyCompletion(ctx context.Context, party *model.Party) ([]model.CreditResult, error) {
	if party.FinishedAt == nil {
		return nil, fmt.Errorf("party %s has no finish time", party.ID)
	}

	now := s.clock.Now()
	results := make([]model.CreditResult, 0, len(party.Members))
	for _, member := range party.Members {
		result, err := s.creditUser(ctx, member.UserID, party.Size(), party.CreatedAt, *party.FinishedAt, now)
		if err != nil {
			return results, fmt.Errorf("credit user %d: %w", member.UserID, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// ProcessFlake debits the convicted user once and records the change
func (s *Service) ProcessFlake(ctx context.Context, party *model.Party, userID model.UserID) (model.CreditResult, error) {
	if party.FinishedAt == nil {
		return model.CreditResult{}, fmt.Errorf("party %s has no finish time", party.ID)
	}

	result, err := s.flakeUser(ctx, userID, party.Size(), party.CreatedAt, *party.FinishedAt, s.clock.Now())
	if err != nil {
		return model.CreditResult{}, fmt.Errorf("debit user %d: %w", userID, err)
	}
	return result, nil
}

func (s *Service) creditUser(ctx context.Context, userID model.UserID, partySize int, createdAt, finishedAt, at time.Time) (model.CreditResult, error) {
	balance, err := s.GetOrCreateBalance(ctx, userID)
	if err != nil {
		return model.CreditResult{}, err
	}

	joined, err := s.partiesJoinedSinceReset(ctx, userID, at)
	if err != nil {
		return model.CreditResult{}, err
	}

	bd := s.Credit(userID, balance, joined, partySize)
	return s.apply(ctx, userID, balance, bd.Delta, partySize, createdAt, finishedAt, model.SourceParty, at)
}

func (s *Service) flakeUser(ctx context.Context, userID model.UserID, partySize int, createdAt, finishedAt, at time.Time) (model.CreditResult, error) {
	balance, err := s.GetOrCreateBalance(ctx, userID)
	if err != nil {
		return model.CreditResult{}, err
	}

	flakeDays, err := s.flakeDaysInWindow(ctx, userID, at)
	if err != nil {
		return model.CreditResult{}, err
	}

	bd := s.Debit(userID, balance, flakeDays, finishedAt.Sub(createdAt), partySize)
	return s.apply(ctx, userID, balance, bd.Delta, partySize, createdAt, finishedAt, model.SourceParty, at)
}

// AdminAdjust applies a direct balance delta, bypassing both formulas. The
// change is clamped to keep the balance non-negative and still produces a
// log entry so history and recalculation include it.
func (s *Service) AdminAdjust(ctx context.Context, userID model.UserID, delta int) (model.CreditResult, error) {
	return s.adminAdjustAt(ctx, userID, delta, s.clock.Now())
}

func (s *Service) adminAdjustAt(ctx context.Context, userID model.UserID, delta int, at time.Time) (model.CreditResult, error) {
	balance, err := s.GetOrCreateBalance(ctx, userID)
	if err != nil {
		return model.CreditResult{}, err
	}

	if balance+delta < 0 {
		delta = -balance
	}

	return s.apply(ctx, userID, balance, delta, 0, time.Time{}, time.Time{}, model.SourceAdmin, at)
}

func (s *Service) apply(ctx context.Context, userID model.UserID, balance, delta, partySize int, createdAt, finishedAt time.Time, source model.LogSource, at time.Time) (model.CreditResult, error) {
	entry := model.CreditLogEntry{
		UserID:          userID,
		PartySize:       partySize,
		PartyCreatedAt:  createdAt,
		PartyFinishedAt: finishedAt,
		PrevBalance:     balance,
		NewBalance:      balance + delta,
		Source:          source,
		Timestamp:       at,
	}
	if err := s.storage.AppendLogEntryAndSetBalance(ctx, entry, entry.NewBalance); err != nil {
		return model.CreditResult{}, err
	}
	return model.CreditResult{
		UserID: userID,
		Old:    balance,
		New:    entry.NewBalance,
		Delta:  delta,
	}, nil
}

// Leaderboard returns all balances sorted descending
func (s *Service) Leaderboard(ctx context.Context) ([]model.UserBalance, error) {
	return s.storage.QueryLeaderboard(ctx)
}

// Balance returns the user's current balance
func (s *Service) Balance(ctx context.Context, userID model.UserID) (int, error) {
	return s.storage.GetBalance(ctx, userID)
}

// History returns the user's log entries at or after since, newest first
func (s *Service) History(ctx context.Context, userID model.UserID, since time.Time) ([]model.CreditLogEntry, error) {
	return s.storage.QueryLog(ctx, userID, since, false)
}
