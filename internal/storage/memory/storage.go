package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sailclub/sailcredit/internal/model"
	"github.com/sailclub/sailcredit/internal/storage"
)

// Storage is an in-memory implementation of the ledger store
type Storage struct {
	mu sync.RWMutex

	balances map[model.UserID]int
	log      []model.CreditLogEntry
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		balances: make(map[model.UserID]int),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) GetBalance(ctx context.Context, userID model.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok := s.balances[userID]
	if !ok {
		return 0, model.ErrUserNotFound
	}
	return balance, nil
}

func (s *Storage) CreateUserWithDefault(ctx context.Context, userID model.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if balance, ok := s.balances[userID]; ok {
		return balance, nil
	}
	s.balances[userID] = model.StartingBalance
	return model.StartingBalance, nil
}

func (s *Storage) SetBalance(ctx context.Context, userID model.UserID, balance int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
	return nil
}

func (s *Storage) AppendLogEntryAndSetBalance(ctx context.Context, entry model.CreditLogEntry, newBalance int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
	s.balances[entry.UserID] = newBalance
	return nil
}

func (s *Storage) QueryLog(ctx context.Context, userID model.UserID, since time.Time, excludeAdmin bool) ([]model.CreditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []model.CreditLogEntry
	// Walk backwards so results come out newest first
	for i := len(s.log) - 1; i >= 0; i-- {
		e := s.log[i]
		if e.UserID != userID || e.Timestamp.Before(since) {
			continue
		}
		if excludeAdmin && e.Source == model.SourceAdmin {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Storage) QueryAllLog(ctx context.Context) ([]model.CreditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]model.CreditLogEntry, len(s.log))
	copy(entries, s.log)
	return entries, nil
}

func (s *Storage) QueryAllBalances(ctx context.Context) ([]model.UserBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balances := make([]model.UserBalance, 0, len(s.balances))
	for userID, balance := range s.balances {
		balances = append(balances, model.UserBalance{UserID: userID, Balance: balance})
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].UserID < balances[j].UserID
	})
	return balances, nil
}

func (s *Storage) QueryLeaderboard(ctx context.Context) ([]model.UserBalance, error) {
	balances, err := s.QueryAllBalances(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(balances, func(i, j int) bool {
		return balances[i].Balance > balances[j].Balance
	})
	return balances, nil
}

func (s *Storage) ResetAllBalances(ctx context.Context, balance int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID := range s.balances {
		s.balances[userID] = balance
	}
	return nil
}

func (s *Storage) WipeLog(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
	return nil
}
