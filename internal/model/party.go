package model

import (
	"time"

	"github.com/google/uuid"
)

// PartyID uniquely identifies a party. Generated once at creation, never reused.
type PartyID = uuid.UUID

// PartyStatus represents the current state of a party's lifecycle
type PartyStatus string

const (
	PartyStatusAssembling PartyStatus = "ASSEMBLING" // Finding members for the party
	PartyStatusSuccess    PartyStatus = "SUCCESS"    // The party ran and nobody was reported
	PartyStatusVoting     PartyStatus = "VOTING"     // Somebody stands trial for flaking
	PartyStatusFailed     PartyStatus = "FAILED"     // The party did not go through
)

// MemberStatus tracks whether a member showed up once the party started
type MemberStatus string

const (
	MemberStatusNeutral  MemberStatus = "NEUTRAL"
	MemberStatusShowedUp MemberStatus = "SHOWED_UP"
	MemberStatusFlaked   MemberStatus = "FLAKED"
)

// DefaultMaxSize is the party capacity when none is given
const DefaultMaxSize = 5

// LowBalanceThreshold is the cached SSC below which a member gets a warning
// flag in party summaries.
const LowBalanceThreshold = 900

// PartyMember represents a user's membership in a party
type PartyMember struct {
	UserID        UserID
	Name          string
	CachedBalance int // SSC at join time, for display warnings only
	Status        MemberStatus
}

// Party represents one in-flight group activity.
//
// Plain data: all mutation goes through the owning registry, which serializes
// access per party. Members are kept in join order; the owner is members[0]
// at creation and reassigned to the earliest-joined member if they leave.
type Party struct {
	ID          PartyID
	Topic       string // role/topic identifier the party is for
	Name        string
	OwnerID     *UserID // unset once the party is abandoned
	MaxSize     int
	Status      PartyStatus
	Description string
	Members     []PartyMember
	Waitlist    []PartyMember // FIFO, only non-empty while the party is full
	CreatedAt   time.Time
	FinishedAt  *time.Time
	StartsAt    *time.Time // scheduled auto-start; nil once unscheduled
}

// Size returns the current member count, excluding the waitlist
func (p *Party) Size() int {
	return len(p.Members)
}

// Member returns the member with the given user id, or nil if not found
func (p *Party) Member(userID UserID) *PartyMember {
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			return &p.Members[i]
		}
	}
	return nil
}

// Waitlisted returns the waitlisted entry for the given user id, or nil
func (p *Party) Waitlisted(userID UserID) *PartyMember {
	for i := range p.Waitlist {
		if p.Waitlist[i].UserID == userID {
			return &p.Waitlist[i]
		}
	}
	return nil
}

// IsOwner reports whether the given user currently owns the party
func (p *Party) IsOwner(userID UserID) bool {
	return p.OwnerID != nil && *p.OwnerID == userID
}

// AddMember adds a user to the party, or to the waitlist if the party is
// full. Returns true if the user was waitlisted.
//
// The caller must have verified the user is not already present in either
// list; duplicate adds are not re-checked here.
func (p *Party) AddMember(userID UserID, name string, cachedBalance int) bool {
	member := PartyMember{
		UserID:        userID,
		Name:          name,
		CachedBalance: cachedBalance,
		Status:        MemberStatusNeutral,
	}

	if len(p.Members) < p.MaxSize {
		p.Members = append(p.Members, member)
		return false
	}

	p.Waitlist = append(p.Waitlist, member)
	return true
}

// RemoveMember removes a user from the party or its waitlist.
//
// If a member leaves while the waitlist is non-empty, the head of the
// waitlist is promoted into the member list and returned. If the owner
// leaves, ownership passes to the earliest-joined remaining member.
func (p *Party) RemoveMember(userID UserID) *PartyMember {
	if p.Member(userID) == nil && p.Waitlisted(userID) == nil {
		return nil
	}

	// User is only in the waitlist; drop them from it.
	if p.Waitlisted(userID) != nil {
		for i := range p.Waitlist {
			if p.Waitlist[i].UserID == userID {
				p.Waitlist = append(p.Waitlist[:i], p.Waitlist[i+1:]...)
				break
			}
		}
		return nil
	}

	for i := range p.Members {
		if p.Members[i].UserID == userID {
			p.Members = append(p.Members[:i], p.Members[i+1:]...)
			break
		}
	}

	var promoted *PartyMember
	if len(p.Waitlist) > 0 {
		next := p.Waitlist[0]
		p.Waitlist = p.Waitlist[1:]
		p.Members = append(p.Members, next)
		promoted = &p.Members[len(p.Members)-1]
	}

	if p.IsOwner(userID) {
		if len(p.Members) > 0 {
			newOwner := p.Members[0].UserID
			p.OwnerID = &newOwner
		} else {
			p.OwnerID = nil
		}
	}

	return promoted
}

// MemberSummary is the renderable view of one member
type MemberSummary struct {
	UserID     UserID
	Name       string
	Balance    int
	IsOwner    bool
	LowBalance bool
}

// PartySummary is the plain-data view of a party for the interaction layer
// to render. This core never formats messages itself.
type PartySummary struct {
	ID             PartyID
	Topic          string
	Name           string
	Description    string
	RemainingSlots int
	StartsAt       *time.Time
	Members        []MemberSummary
	Waitlist       []MemberSummary
}

// Summary builds the renderable view of the party
func (p *Party) Summary() PartySummary {
	s := PartySummary{
		ID:             p.ID,
		Topic:          p.Topic,
		Name:           p.Name,
		Description:    p.Description,
		RemainingSlots: p.MaxSize - len(p.Members),
		StartsAt:       p.StartsAt,
	}
	for _, m := range p.Members {
		s.Members = append(s.Members, MemberSummary{
			UserID:     m.UserID,
			Name:       m.Name,
			Balance:    m.CachedBalance,
			IsOwner:    p.IsOwner(m.UserID),
			LowBalance: m.CachedBalance < LowBalanceThreshold,
		})
	}
	for _, m := range p.Waitlist {
		s.Waitlist = append(s.Waitlist, MemberSummary{
			UserID:     m.UserID,
			Name:       m.Name,
			Balance:    m.CachedBalance,
			LowBalance: m.CachedBalance < LowBalanceThreshold,
		})
	}
	return s
}
