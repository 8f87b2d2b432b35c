// Package storagetest provides a conformance suite run against every ledger
// store backend.
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/sailclub/sailcredit/internal/model"
	"github.com/sailclub/sailcredit/internal/storage"
)

// Suite exercises the storage.Storage contract. Backend test packages embed
// it and supply NewStore.
type Suite struct {
	suite.Suite

	// NewStore returns a fresh, empty store for each test
	NewStore func(s *Suite) storage.Storage

	store storage.Storage
	ctx   context.Context
	base  time.Time
}

func (s *Suite) SetupTest() {
	s.store = s.NewStore(s)
	s.ctx = context.Background()
	s.base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) entry(userID model.UserID, prev, next int, source model.LogSource, at time.Time) model.CreditLogEntry {
	return model.CreditLogEntry{
		UserID:          userID,
		PartySize:       4,
		PartyCreatedAt:  at.Add(-30 * time.Minute),
		PartyFinishedAt: at,
		PrevBalance:     prev,
		NewBalance:      next,
		Source:          source,
		Timestamp:       at,
	}
}

func (s *Suite) TestGetBalanceUnknownUser() {
	_, err := s.store.GetBalance(s.ctx, 42)
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestCreateUserWithDefault() {
	balance, err := s.store.CreateUserWithDefault(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal(model.StartingBalance, balance)

	got, err := s.store.GetBalance(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal(model.StartingBalance, got)
}

func (s *Suite) TestCreateUserKeepsExistingBalance() {
	s.Require().NoError(s.store.SetBalance(s.ctx, 42, 740))

	balance, err := s.store.CreateUserWithDefault(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal(740, balance)
}

func (s *Suite) TestSetBalance() {
	s.Require().NoError(s.store.SetBalance(s.ctx, 42, 1200))
	balance, err := s.store.GetBalance(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal(1200, balance)

	s.Require().NoError(s.store.SetBalance(s.ctx, 42, 900))
	balance, err = s.store.GetBalance(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal(900, balance)
}

func (s *Suite) TestAppendLogEntryAndSetBalance() {
	entry := s.entry(42, 1000, 1012, model.SourceParty, s.base)
	s.Require().NoError(s.store.AppendLogEntryAndSetBalance(s.ctx, entry, 1012))

	balance, err := s.store.GetBalance(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal(1012, balance)

	entries, err := s.store.QueryLog(s.ctx, 42, time.Time{}, false)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	got := entries[0]
	s.Equal(model.UserID(42), got.UserID)
	s.Equal(4, got.PartySize)
	s.Equal(1000, got.PrevBalance)
	s.Equal(1012, got.NewBalance)
	s.Equal(model.SourceParty, got.Source)
	s.Equal(s.base.UnixMilli(), got.Timestamp.UnixMilli())
	s.Equal(entry.PartyCreatedAt.UnixMilli(), got.PartyCreatedAt.UnixMilli())
	s.Equal(entry.PartyFinishedAt.UnixMilli(), got.PartyFinishedAt.UnixMilli())
}

func (s *Suite) TestQueryLogNewestFirst() {
	for i := 0; i < 3; i++ {
		entry := s.entry(42, 1000+i, 1001+i, model.SourceParty, s.base.Add(time.Duration(i)*time.Hour))
		s.Require().NoError(s.store.AppendLogEntryAndSetBalance(s.ctx, entry, 1001+i))
	}

	entries, err := s.store.QueryLog(s.ctx, 42, time.Time{}, false)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal(1002, entries[0].PrevBalance)
	s.Equal(1001, entries[1].PrevBalance)
	s.Equal(1000, entries[2].PrevBalance)
}

func (s *Suite) TestQueryLogSinceFilter() {
	for i := 0; i < 3; i++ {
		entry := s.entry(42, 1000, 1001, model.SourceParty, s.base.Add(time.Duration(i)*time.Hour))
		s.Require().NoError(s.store.AppendLogEntryAndSetBalance(s.ctx, entry, 1001))
	}

	entries, err := s.store.QueryLog(s.ctx, 42, s.base.Add(time.Hour), false)
	s.Require().NoError(err)
	s.Len(entries, 2)
}

func (s *Suite) TestQueryLogExcludeAdmin() {
	party := s.entry(42, 1000, 1012, model.SourceParty, s.base)
	admin := s.entry(42, 1012, 1500, model.SourceAdmin, s.base.Add(time.Hour))
	s.Require().NoError(s.store.AppendLogEntryAndSetBalance(s.ctx, party, 1012))
	s.Require().NoError(s.store.AppendLogEntryAndSetBalance(s.ctx, admin, 1500))

	entries, err := s.store.QueryLog(s.ctx, 42, time.Time{}, true)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(model.SourceParty, entries[0].Source)

	entries, err = s.store.QueryLog(s.ctx, 42, time.Time{}, false)
	s.Require().NoError(err)
	s.Len(entries, 2)
}

func (s *Suite) TestQueryLogOtherUserInvisible() {
	entry := s.entry(7, 1000, 1012, model.SourceParty, s.base)
	s.Require().NoError(s.store.AppendLogEntryAndSetBalance(s.ctx, entry, 1012))

	entries, err := s.store.QueryLog(s.ctx, 42, time.Time{}, false)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *Suite) TestQueryAllLogChronological() {
	s.Require().NoError(s.store.AppendLogEntryAndSetBalance(s.ctx,
		s.entry(7, 1000, 1020, model.SourceParty, s.base), 1020))
	s.Require().NoError(s.store.AppendLogEntryAndSetBalance(s.ctx,
		s.entry(42, 1000, 1012, model.SourceParty, s.base.Add(time.Hour)), 1012))
	s.Require().NoError(s.store.AppendLogEntryAndSetBalance(s.ctx,
		s.entry(7, 1020, 860, model.SourceParty, s.base.Add(2*time.Hour)), 860))

	entries, err := s.store.QueryAllLog(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal(model.UserID(7), entries[0].UserID)
	s.Equal(model.UserID(42), entries[1].UserID)
	s.Equal(model.UserID(7), entries[2].UserID)
	s.Equal(860, entries[2].NewBalance)
}

func (s *Suite) TestQueryAllBalances() {
	s.Require().NoError(s.store.SetBalance(s.ctx, 42, 900))
	s.Require().NoError(s.store.SetBalance(s.ctx, 7, 1100))
	s.Require().NoError(s.store.SetBalance(s.ctx, 23, 1000))

	balances, err := s.store.QueryAllBalances(s.ctx)
	s.Require().NoError(err)
	s.Equal([]model.UserBalance{
		{UserID: 7, Balance: 1100},
		{UserID: 23, Balance: 1000},
		{UserID: 42, Balance: 900},
	}, balances)
}

func (s *Suite) TestQueryLeaderboardDescending() {
	s.Require().NoError(s.store.SetBalance(s.ctx, 42, 900))
	s.Require().NoError(s.store.SetBalance(s.ctx, 7, 1100))
	s.Require().NoError(s.store.SetBalance(s.ctx, 23, 1000))

	balances, err := s.store.QueryLeaderboard(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(balances, 3)
	s.Equal(model.UserID(7), balances[0].UserID)
	s.Equal(model.UserID(23), balances[1].UserID)
	s.Equal(model.UserID(42), balances[2].UserID)
}

func (s *Suite) TestResetAllBalances() {
	s.Require().NoError(s.store.SetBalance(s.ctx, 42, 900))
	s.Require().NoError(s.store.SetBalance(s.ctx, 7, 1100))

	s.Require().NoError(s.store.ResetAllBalances(s.ctx, model.StartingBalance))

	balances, err := s.store.QueryAllBalances(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(balances, 2)
	for _, b := range balances {
		s.Equal(model.StartingBalance, b.Balance)
	}
}

func (s *Suite) TestWipeLog() {
	entry := s.entry(42, 1000, 1012, model.SourceParty, s.base)
	s.Require().NoError(s.store.AppendLogEntryAndSetBalance(s.ctx, entry, 1012))

	s.Require().NoError(s.store.WipeLog(s.ctx))

	entries, err := s.store.QueryAllLog(s.ctx)
	s.Require().NoError(err)
	s.Empty(entries)

	// Balances survive a log wipe
	balance, err := s.store.GetBalance(s.ctx, 42)
	s.Require().NoError(err)
	s.Equal(1012, balance)
}
