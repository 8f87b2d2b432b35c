// Package party implements the party registry: the single authority over
// the set of currently-assembling parties and their auto-start timers.
package party

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sailclub/sailcredit/internal/dependencies/clock"
	"github.com/sailclub/sailcredit/internal/events"
	"github.com/sailclub/sailcredit/internal/model"
	"github.com/sailclub/sailcredit/internal/scheduler"
	"github.com/sailclub/sailcredit/internal/services/adjudication"
	"github.com/sailclub/sailcredit/internal/services/bureau"
)

const (
	// DefaultStartDelay is the auto-start delay when no start time is given
	DefaultStartDelay = 5 * time.Minute

	// MinStartDelay is the floor applied to start times in the past
	MinStartDelay = 10 * time.Second

	// MaxStartDelay is the ceiling on how far out a start may be scheduled
	MaxStartDelay = 12 * time.Hour
)

// CreateOptions holds the optional attributes of a new party. Zero values
// take defined defaults; no sentinel-based optionality.
type CreateOptions struct {
	Topic       string
	Name        string // defaults to "<owner>'s <topic> Party"
	MaxSize     int    // defaults to model.DefaultMaxSize
	Description string
	StartAt     *time.Time // defaults to now + DefaultStartDelay, then clamped
}

// liveParty pairs a party with the mutex serializing its mutations.
// Operations on different parties proceed independently.
type liveParty struct {
	mu    sync.Mutex
	party *model.Party
}

// Registry owns the live party set
type Registry struct {
	mu      sync.RWMutex
	parties map[model.PartyID]*liveParty

	bureau       *bureau.Service
	adjudication *adjudication.Manager
	sched        *scheduler.Scheduler
	clock        clock.Clock
	events       events.Sink
	logger       *slog.Logger
}

// NewRegistry creates a new Registry
func NewRegistry(
	bureauService *bureau.Service,
	adjudicationManager *adjudication.Manager,
	sched *scheduler.Scheduler,
	clk clock.Clock,
	sink events.Sink,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		parties:      make(map[model.PartyID]*liveParty),
		bureau:       bureauService,
		adjudication: adjudicationManager,
		sched:        sched,
		clock:        clk,
		events:       sink,
		logger:       logger.With(slog.String("component", "party_registry")),
	}
}

// clampStart bounds a requested start time to [now+MinStartDelay, now+MaxStartDelay]
func (r *Registry) clampStart(runAt time.Time) time.Time {
	now := r.clock.Now()
	if runAt.Before(now) {
		return now.Add(MinStartDelay)
	}
	if runAt.After(now.Add(MaxStartDelay)) {
		return now.Add(MaxStartDelay)
	}
	return runAt
}

// CreateParty builds a party with the creator as sole member and owner,
// registers it, and schedules its auto-start job.
func (r *Registry) CreateParty(ctx context.Context, creatorID model.UserID, creatorName string, opts CreateOptions) (*model.Party, error) {
	balance, err := r.bureau.GetOrCreateBalance(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("load creator balance: %w", err)
	}

	now := r.clock.Now()
	runAt := now.Add(DefaultStartDelay)
	if opts.StartAt != nil {
		runAt = *opts.StartAt
	}
	runAt = r.clampStart(runAt)

	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = model.DefaultMaxSize
	}
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("%s's %s Party", creatorName, opts.Topic)
	}

	ownerID := creatorID
	party := &model.Party{
		ID:          uuid.New(),
		Topic:       opts.Topic,
		Name:        name,
		OwnerID:     &ownerID,
		MaxSize:     maxSize,
		Status:      model.PartyStatusAssembling,
		Description: opts.Description,
		CreatedAt:   now,
		StartsAt:    &runAt,
	}
	party.AddMember(creatorID, creatorName, balance)

	r.mu.Lock()
	r.parties[party.ID] = &liveParty{party: party}
	r.mu.Unlock()

	r.sched.Schedule(startJobID(party.ID), runAt, func(id string) {
		r.onAutoStart(id)
	})

	r.logger.Info("party created",
		slog.String("party_id", party.ID.String()),
		slog.Uint64("owner_id", uint64(creatorID)),
		slog.String("topic", opts.Topic),
		slog.Int("max_size", maxSize),
		slog.Time("starts_at", runAt),
	)
	r.events.Publish(model.Event{
		Type:      model.EventPartyCreated,
		Timestamp: now,
		PartyID:   party.ID,
		UserID:    creatorID,
	})
	return party, nil
}

// GetParty retrieves a live party by id
func (r *Registry) GetParty(partyID model.PartyID) (*model.Party, error) {
	lp := r.lookup(partyID)
	if lp == nil {
		return nil, model.ErrPartyNotFound
	}
	return lp.party, nil
}

// RemoveParty drops a party from the live set and cancels its pending
// auto-start job. Removing an unknown or already-removed id is a no-op.
func (r *Registry) RemoveParty(partyID model.PartyID) {
	r.mu.Lock()
	_, ok := r.parties[partyID]
	delete(r.parties, partyID)
	r.mu.Unlock()

	r.sched.Cancel(startJobID(partyID))
	if ok {
		r.logger.Info("party removed", slog.String("party_id", partyID.String()))
	}
}

// RescheduleStart shifts a pending auto-start by deltaMinutes, re-applying
// the clamping rule. Returns the new effective time, or nil if the party has
// no pending job (unknown, unscheduled, or already fired).
func (r *Registry) RescheduleStart(partyID model.PartyID, deltaMinutes int) *time.Time {
	lp := r.lookup(partyID)
	if lp == nil {
		return nil
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.party.StartsAt == nil {
		return nil
	}
	runAt, ok := r.sched.RunAt(startJobID(partyID))
	if !ok {
		return nil
	}

	newRun := r.clampStart(runAt.Add(time.Duration(deltaMinutes) * time.Minute))
	if !r.sched.Reschedule(startJobID(partyID), newRun) {
		return nil
	}
	lp.party.StartsAt = &newRun

	r.logger.Info("party start rescheduled",
		slog.String("party_id", partyID.String()),
		slog.Int("delta_minutes", deltaMinutes),
		slog.Time("starts_at", newRun),
	)
	r.events.Publish(model.Event{
		Type:      model.EventStartRescheduled,
		Timestamp: r.clock.Now(),
		PartyID:   partyID,
	})
	return &newRun
}

func (r *Registry) lookup(partyID model.PartyID) *liveParty {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parties[partyID]
}

func startJobID(partyID model.PartyID) string {
	return "start:" + partyID.String()
}
