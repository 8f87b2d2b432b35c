package party

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/sailclub/sailcredit/internal/model"
	"github.com/sailclub/sailcredit/internal/services/adjudication"
)

// StartParty starts a party manually. Only the owner may start, and never
// with fewer than 2 members. The party leaves the registry and enters its
// adjudication window.
func (r *Registry) StartParty(partyID model.PartyID, requesterID model.UserID) (*adjudication.Window, error) {
	lp := r.lookup(partyID)
	if lp == nil {
		return nil, model.ErrPartyNotFound
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	if !lp.party.IsOwner(requesterID) {
		return nil, model.ErrNotOwner
	}
	if lp.party.Size() < 2 {
		return nil, model.ErrInsufficientMembers
	}

	return r.startLocked(lp, false), nil
}

// CancelParty removes a party without scoring. Owner only.
func (r *Registry) CancelParty(partyID model.PartyID, requesterID model.UserID) error {
	lp := r.lookup(partyID)
	if lp == nil {
		return model.ErrPartyNotFound
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	if !lp.party.IsOwner(requesterID) {
		return model.ErrNotOwner
	}

	r.RemoveParty(partyID)
	r.logger.Info("party cancelled",
		slog.String("party_id", partyID.String()),
		slog.Uint64("owner_id", uint64(requesterID)),
	)
	r.events.Publish(model.Event{
		Type:      model.EventPartyCancelled,
		Timestamp: r.clock.Now(),
		PartyID:   partyID,
		UserID:    requesterID,
	})
	return nil
}

// startLocked moves a party out of the registry and into adjudication.
// Caller holds the party lock.
func (r *Registry) startLocked(lp *liveParty, automatic bool) *adjudication.Window {
	party := lp.party
	r.RemoveParty(party.ID)

	memberIDs := make([]model.UserID, 0, len(party.Members))
	for _, m := range party.Members {
		memberIDs = append(memberIDs, m.UserID)
	}

	w := r.adjudication.OpenWindow(party)

	r.logger.Info("party started",
		slog.String("party_id", party.ID.String()),
		slog.Int("members", party.Size()),
		slog.Bool("automatic", automatic),
	)
	r.events.Publish(model.Event{
		Type:      model.EventPartyStarted,
		Timestamp: r.clock.Now(),
		PartyID:   party.ID,
		Payload: model.PartyStartedPayload{
			Members:   memberIDs,
			Automatic: automatic,
		},
	})
	return w
}

// onAutoStart is the scheduler callback for a party's auto-start job.
//
// Auto-start has stricter requirements than a manual start: the party must
// be full. A party that is merely viable (>=2 members but not full) stays in
// the registry, loses its schedule, and can still be started manually.
func (r *Registry) onAutoStart(jobID string) {
	partyID, err := uuid.Parse(jobID[len("start:"):])
	if err != nil {
		r.logger.Error("bad auto-start job id", slog.String("job_id", jobID))
		return
	}

	lp := r.lookup(partyID)
	if lp == nil {
		// Party was cancelled or started between firing and running
		return
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()
	now := r.clock.Now()

	if lp.party.Size() < 2 {
		lp.party.StartsAt = nil
		r.RemoveParty(partyID)
		r.logger.Info("party could not auto-start, too few members",
			slog.String("party_id", partyID.String()),
			slog.Int("members", lp.party.Size()),
		)
		r.events.Publish(model.Event{
			Type:      model.EventAutoStartTooFew,
			Timestamp: now,
			PartyID:   partyID,
		})
		return
	}

	if lp.party.Size() < lp.party.MaxSize {
		lp.party.StartsAt = nil
		r.logger.Info("party not auto-started, not full",
			slog.String("party_id", partyID.String()),
			slog.Int("members", lp.party.Size()),
			slog.Int("max_size", lp.party.MaxSize),
		)
		r.events.Publish(model.Event{
			Type:      model.EventAutoStartSkipped,
			Timestamp: now,
			PartyID:   partyID,
		})
		return
	}

	r.startLocked(lp, true)
}
