// Package adjudication implements the post-start flake adjudication window
// and its quorum vote.
//
// Once a party starts it leaves the registry and enters a time-boxed window
// here. If the window lapses with no vote open, the party succeeded and
// every member is rewarded. A member may report one flake, opening a vote
// that convicts or acquits on quorum, or lapses as a hung vote with no
// scoring either way.
package adjudication

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sailclub/sailcredit/internal/model"
)

const (
	// WindowDuration is how long members may report a flake after start
	WindowDuration = 5 * time.Minute

	// VoteDuration is how long an open vote may run before it hangs
	VoteDuration = 5 * time.Minute
)

// Quorum returns the votes needed on either side to close a vote. Computed
// against the party's capacity, not the live member count.
func Quorum(maxSize int) int {
	return (maxSize + 1) / 2
}

// Window is the adjudication state for one started party. All mutation is
// serialized by its mutex; scheduler callbacks and caller operations may
// race freely.
type Window struct {
	mu      sync.Mutex
	manager *Manager
	party   *model.Party

	voteOpen     bool
	closed       bool
	reporterID   model.UserID
	reporteeID   model.UserID
	convictVotes []model.UserID
	acquitVotes  []model.UserID
}

// Party returns the party under adjudication
func (w *Window) Party() *model.Party {
	return w.party
}

// ReportMember opens a flake vote against a current member.
//
// The reportee is marked FLAKED immediately so they cannot be reported a
// second time, whatever the vote's outcome.
func (w *Window) ReportMember(reporterID, reporteeID model.UserID, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return model.ErrWindowClosed
	}
	if w.voteOpen {
		return model.ErrVoteAlreadyOpen
	}
	if w.party.Member(reporterID) == nil {
		return model.ErrNotAMember
	}
	reportee := w.party.Member(reporteeID)
	if reportee == nil {
		return model.ErrNotAMember
	}
	if reportee.Status == model.MemberStatusFlaked {
		return model.ErrAlreadyReported
	}

	reportee.Status = model.MemberStatusFlaked
	w.party.Status = model.PartyStatusVoting
	w.voteOpen = true
	w.reporterID = reporterID
	w.reporteeID = reporteeID
	w.convictVotes = nil
	w.acquitVotes = nil

	w.manager.scheduleVoteTimeout(w.party.ID)

	w.manager.logger.Info("flake reported",
		slog.String("party_id", w.party.ID.String()),
		slog.Uint64("reporter_id", uint64(reporterID)),
		slog.Uint64("reportee_id", uint64(reporteeID)),
	)
	w.manager.events.Publish(model.Event{
		Type:      model.EventFlakeReported,
		Timestamp: w.manager.clock.Now(),
		PartyID:   w.party.ID,
		UserID:    reporteeID,
		Payload: model.FlakeReportedPayload{
			ReporterID: reporterID,
			ReporteeID: reporteeID,
			Reason:     reason,
		},
	})
	return nil
}

// CastVote records a member's convict or acquit vote. Voting again on the
// same side is rejected; voting the other side retracts the previous vote.
// When either side reaches quorum the vote closes and, on conviction, the
// reportee is debited.
func (w *Window) CastVote(ctx context.Context, voterID model.UserID, convict bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return model.ErrWindowClosed
	}
	if !w.voteOpen {
		return model.ErrNoVoteOpen
	}
	if w.party.Member(voterID) == nil {
		return model.ErrNotEligibleVoter
	}

	side, other := &w.convictVotes, &w.acquitVotes
	if !convict {
		side, other = other, side
	}
	if containsVote(*side, voterID) {
		return model.ErrAlreadyVoted
	}
	*other = removeVote(*other, voterID)
	*side = append(*side, voterID)

	w.manager.events.Publish(model.Event{
		Type:      model.EventVoteCast,
		Timestamp: w.manager.clock.Now(),
		PartyID:   w.party.ID,
		UserID:    voterID,
		Payload: model.VoteCastPayload{
			VoterID: voterID,
			Convict: convict,
			Tally:   w.tallyLocked(),
		},
	})

	return w.tallyVotesLocked(ctx)
}

// Tally returns the current standing of the open vote
func (w *Window) Tally() model.VoteTally {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tallyLocked()
}

func (w *Window) tallyLocked() model.VoteTally {
	return model.VoteTally{
		ConvictVotes: len(w.convictVotes),
		AcquitVotes:  len(w.acquitVotes),
		Quorum:       Quorum(w.party.MaxSize),
	}
}

// tallyVotesLocked closes the vote if either side has reached quorum
func (w *Window) tallyVotesLocked(ctx context.Context) error {
	quorum := Quorum(w.party.MaxSize)
	convicted := len(w.convictVotes) >= quorum
	acquitted := len(w.acquitVotes) >= quorum
	if !convicted && !acquitted {
		return nil
	}

	now := w.manager.clock.Now()
	w.party.FinishedAt = &now
	w.party.Status = model.PartyStatusFailed
	w.closed = true
	w.manager.remove(w.party.ID)

	payload := model.VoteClosedPayload{
		ReporteeID: w.reporteeID,
		Convicted:  convicted,
	}

	if convicted {
		result, err := w.manager.bureau.ProcessFlake(ctx, w.party, w.reporteeID)
		if err != nil {
			// A scoring write that fails is a data-integrity problem the
			// caller must surface, not a recoverable vote error.
			return fmt.Errorf("process flake: %w", err)
		}
		payload.Penalty = &result
	}

	w.manager.logger.Info("flake vote closed",
		slog.String("party_id", w.party.ID.String()),
		slog.Uint64("reportee_id", uint64(w.reporteeID)),
		slog.Bool("convicted", convicted),
	)
	w.manager.events.Publish(model.Event{
		Type:      model.EventVoteClosed,
		Timestamp: now,
		PartyID:   w.party.ID,
		UserID:    w.reporteeID,
		Payload:   payload,
	})
	return nil
}

func containsVote(votes []model.UserID, userID model.UserID) bool {
	for _, v := range votes {
		if v == userID {
			return true
		}
	}
	return false
}

func removeVote(votes []model.UserID, userID model.UserID) []model.UserID {
	for i, v := range votes {
		if v == userID {
			return append(votes[:i], votes[i+1:]...)
		}
	}
	return votes
}
