package adjudication

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sailclub/sailcredit/internal/dependencies/clock"
	"github.com/sailclub/sailcredit/internal/events"
	"github.com/sailclub/sailcredit/internal/model"
	"github.com/sailclub/sailcredit/internal/scheduler"
	"github.com/sailclub/sailcredit/internal/services/bureau"
)

// Manager owns the adjudication windows of started parties and drives their
// timeouts through the scheduler.
type Manager struct {
	mu      sync.RWMutex
	windows map[model.PartyID]*Window

	bureau *bureau.Service
	sched  *scheduler.Scheduler
	clock  clock.Clock
	events events.Sink
	logger *slog.Logger
}

// NewManager creates a new adjudication Manager
func NewManager(
	bureauService *bureau.Service,
	sched *scheduler.Scheduler,
	clk clock.Clock,
	sink events.Sink,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		windows: make(map[model.PartyID]*Window),
		bureau:  bureauService,
		sched:   sched,
		clock:   clk,
		events:  sink,
		logger:  logger.With(slog.String("component", "adjudication")),
	}
}

// OpenWindow takes ownership of a started party and opens its adjudication
// window. The window lapses into SUCCESS after WindowDuration unless a vote
// is open by then.
func (m *Manager) OpenWindow(party *model.Party) *Window {
	w := &Window{manager: m, party: party}

	m.mu.Lock()
	m.windows[party.ID] = w
	m.mu.Unlock()

	m.sched.Schedule(windowJobID(party.ID), m.clock.Now().Add(WindowDuration), func(string) {
		m.onWindowElapsed(party.ID)
	})

	m.logger.Info("adjudication window opened",
		slog.String("party_id", party.ID.String()),
		slog.Int("members", party.Size()),
	)
	return w
}

// Get returns the window for a started party, or nil if none is open
func (m *Manager) Get(partyID model.PartyID) *Window {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.windows[partyID]
}

func (m *Manager) remove(partyID model.PartyID) {
	m.mu.Lock()
	delete(m.windows, partyID)
	m.mu.Unlock()
	m.sched.Cancel(windowJobID(partyID))
	m.sched.Cancel(voteJobID(partyID))
}

func (m *Manager) scheduleVoteTimeout(partyID model.PartyID) {
	m.sched.Schedule(voteJobID(partyID), m.clock.Now().Add(VoteDuration), func(string) {
		m.onVoteElapsed(partyID)
	})
}

// onWindowElapsed fires when the report window lapses. With no vote open the
// party is a success and every member is rewarded once.
func (m *Manager) onWindowElapsed(partyID model.PartyID) {
	w := m.Get(partyID)
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.voteOpen {
		// An open vote resolves the party through its own timeout
		return
	}

	now := m.clock.Now()
	w.party.Status = model.PartyStatusSuccess
	w.party.FinishedAt = &now
	w.closed = true
	m.remove(partyID)

	rewards, err := m.bureau.ProcessPartyCompletion(context.Background(), w.party)
	if err != nil {
		// Scoring writes must not be dropped silently; this is a
		// data-integrity failure, not a benign misfire.
		m.logger.Error("party completion scoring failed",
			slog.String("party_id", partyID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	m.logger.Info("party succeeded",
		slog.String("party_id", partyID.String()),
		slog.Int("members_rewarded", len(rewards)),
	)
	m.events.Publish(model.Event{
		Type:      model.EventPartySucceeded,
		Timestamp: now,
		PartyID:   partyID,
		Payload:   model.PartySucceededPayload{Rewards: rewards},
	})
}

// onVoteElapsed fires when an open vote lapses without quorum. The vote is
// abandoned: no conviction, no reward, and no new window.
func (m *Manager) onVoteElapsed(partyID model.PartyID) {
	w := m.Get(partyID)
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.voteOpen {
		return
	}

	now := m.clock.Now()
	w.party.Status = model.PartyStatusFailed
	w.party.FinishedAt = &now
	w.closed = true
	m.remove(partyID)

	m.logger.Info("flake vote timed out",
		slog.String("party_id", partyID.String()),
		slog.Uint64("reportee_id", uint64(w.reporteeID)),
	)
	m.events.Publish(model.Event{
		Type:      model.EventVoteTimedOut,
		Timestamp: now,
		PartyID:   partyID,
		UserID:    w.reporteeID,
		Payload: model.VoteClosedPayload{
			ReporteeID: w.reporteeID,
			Convicted:  false,
		},
	})
}

func windowJobID(partyID model.PartyID) string {
	return "adjudication:" + partyID.String()
}

func voteJobID(partyID model.PartyID) string {
	return "vote:" + partyID.String()
}
