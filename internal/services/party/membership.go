package party

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sailclub/sailcredit/internal/model"
)

// JoinParty adds a user to a party, waitlisting them if it is full. Returns
// true if the user was waitlisted.
func (r *Registry) JoinParty(ctx context.Context, partyID model.PartyID, userID model.UserID, name string) (bool, error) {
	lp := r.lookup(partyID)
	if lp == nil {
		return false, model.ErrPartyNotFound
	}

	// Fetch the display balance before taking the party lock; the store is
	// the only suspension point in this path.
	balance, err := r.bureau.GetOrCreateBalance(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load balance: %w", err)
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.party.Member(userID) != nil {
		return false, model.ErrAlreadyMember
	}
	if lp.party.Waitlisted(userID) != nil {
		return false, model.ErrAlreadyWaitlisted
	}

	waitlisted := lp.party.AddMember(userID, name, balance)

	eventType := model.EventMemberJoined
	if waitlisted {
		eventType = model.EventMemberWaitlisted
	}
	r.logger.Info("member joined",
		slog.String("party_id", partyID.String()),
		slog.Uint64("user_id", uint64(userID)),
		slog.Bool("waitlisted", waitlisted),
	)
	r.events.Publish(model.Event{
		Type:      eventType,
		Timestamp: r.clock.Now(),
		PartyID:   partyID,
		UserID:    userID,
		Payload: model.MemberJoinedPayload{
			Member:     model.PartyMember{UserID: userID, Name: name, CachedBalance: balance, Status: model.MemberStatusNeutral},
			Waitlisted: waitlisted,
		},
	})
	return waitlisted, nil
}

// LeaveParty removes a user from a party or its waitlist. If the head of the
// waitlist is promoted in their place it is returned. An emptied party is
// abandoned and removed from the registry with no scoring.
func (r *Registry) LeaveParty(ctx context.Context, partyID model.PartyID, userID model.UserID) (*model.PartyMember, error) {
	lp := r.lookup(partyID)
	if lp == nil {
		return nil, model.ErrPartyNotFound
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.party.Member(userID) == nil && lp.party.Waitlisted(userID) == nil {
		return nil, model.ErrNotAMember
	}

	oldOwner := lp.party.OwnerID
	promoted := lp.party.RemoveMember(userID)
	now := r.clock.Now()

	r.events.Publish(model.Event{
		Type:      model.EventMemberLeft,
		Timestamp: now,
		PartyID:   partyID,
		UserID:    userID,
		Payload:   model.MemberLeftPayload{UserID: userID, Promoted: promoted},
	})

	if lp.party.Size() == 0 {
		r.RemoveParty(partyID)
		r.logger.Info("party abandoned",
			slog.String("party_id", partyID.String()),
		)
		r.events.Publish(model.Event{
			Type:      model.EventPartyAbandoned,
			Timestamp: now,
			PartyID:   partyID,
		})
		return nil, nil
	}

	if promoted != nil {
		r.events.Publish(model.Event{
			Type:      model.EventMemberPromoted,
			Timestamp: now,
			PartyID:   partyID,
			UserID:    promoted.UserID,
		})
	}

	if oldOwner != nil && lp.party.OwnerID != nil && *oldOwner != *lp.party.OwnerID {
		r.logger.Info("party owner changed",
			slog.String("party_id", partyID.String()),
			slog.Uint64("new_owner_id", uint64(*lp.party.OwnerID)),
		)
		r.events.Publish(model.Event{
			Type:      model.EventOwnerChanged,
			Timestamp: now,
			PartyID:   partyID,
			UserID:    *lp.party.OwnerID,
			Payload: model.OwnerChangedPayload{
				OldOwnerID: *oldOwner,
				NewOwnerID: *lp.party.OwnerID,
			},
		})
	}

	return promoted, nil
}
