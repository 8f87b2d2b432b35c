package party

import (
	"sort"
	"time"

	"github.com/sailclub/sailcredit/internal/model"
)

// Summary returns the renderable view of a live party
func (r *Registry) Summary(partyID model.PartyID) (model.PartySummary, error) {
	lp := r.lookup(partyID)
	if lp == nil {
		return model.PartySummary{}, model.ErrPartyNotFound
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.party.Summary(), nil
}

// ListPartiesFor returns summaries of the live parties the user belongs to,
// oldest first. With ownerOnly set, only parties they own.
func (r *Registry) ListPartiesFor(userID model.UserID, ownerOnly bool) []model.PartySummary {
	return r.collect(func(p *model.Party) bool {
		if p.Member(userID) == nil && p.Waitlisted(userID) == nil {
			return false
		}
		return !ownerOnly || p.IsOwner(userID)
	})
}

// SearchByTopic returns summaries of the live parties for a topic, oldest first
func (r *Registry) SearchByTopic(topic string) []model.PartySummary {
	return r.collect(func(p *model.Party) bool {
		return p.Topic == topic
	})
}

func (r *Registry) collect(match func(*model.Party) bool) []model.PartySummary {
	r.mu.RLock()
	live := make([]*liveParty, 0, len(r.parties))
	for _, lp := range r.parties {
		live = append(live, lp)
	}
	r.mu.RUnlock()

	type dated struct {
		summary   model.PartySummary
		createdAt time.Time
	}
	var matched []dated
	for _, lp := range live {
		lp.mu.Lock()
		if match(lp.party) {
			matched = append(matched, dated{lp.party.Summary(), lp.party.CreatedAt})
		}
		lp.mu.Unlock()
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].createdAt.Before(matched[j].createdAt)
	})

	summaries := make([]model.PartySummary, 0, len(matched))
	for _, d := range matched {
		summaries = append(summaries, d.summary)
	}
	return summaries
}
