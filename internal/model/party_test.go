package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type PartySuite struct {
	suite.Suite
	party *Party
}

func TestPartySuite(t *testing.T) {
	suite.Run(t, new(PartySuite))
}

func (s *PartySuite) SetupTest() {
	owner := UserID(1)
	s.party = &Party{
		ID:        uuid.New(),
		Topic:     "sailing",
		Name:      "Test Party",
		OwnerID:   &owner,
		MaxSize:   3,
		Status:    PartyStatusAssembling,
		CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	s.party.AddMember(1, "Owner", 1000)
}

func (s *PartySuite) TestAddMemberUntilFull() {
	s.False(s.party.AddMember(2, "Two", 1000))
	s.False(s.party.AddMember(3, "Three", 1000))
	s.Equal(3, s.party.Size())
	s.Empty(s.party.Waitlist)
}

func (s *PartySuite) TestAddMemberWaitlistsWhenFull() {
	s.party.AddMember(2, "Two", 1000)
	s.party.AddMember(3, "Three", 1000)

	s.True(s.party.AddMember(4, "Four", 1000))
	s.Equal(3, s.party.Size())
	s.Len(s.party.Waitlist, 1)
	s.Equal(UserID(4), s.party.Waitlist[0].UserID)
}

func (s *PartySuite) TestSizeNeverExceedsMaxSize() {
	for id := UserID(2); id <= 10; id++ {
		s.party.AddMember(id, "m", 1000)
		s.LessOrEqual(s.party.Size(), s.party.MaxSize)
	}
}

func (s *PartySuite) TestNoUserInBothLists() {
	for id := UserID(2); id <= 6; id++ {
		s.party.AddMember(id, "m", 1000)
	}
	for id := UserID(1); id <= 6; id++ {
		inMembers := s.party.Member(id) != nil
		inWaitlist := s.party.Waitlisted(id) != nil
		s.False(inMembers && inWaitlist, "user %d in both lists", id)
	}
}

func (s *PartySuite) TestRemoveMemberFromWaitlistOnly() {
	s.party.AddMember(2, "Two", 1000)
	s.party.AddMember(3, "Three", 1000)
	s.party.AddMember(4, "Four", 1000)

	promoted := s.party.RemoveMember(4)
	s.Nil(promoted)
	s.Equal(3, s.party.Size())
	s.Empty(s.party.Waitlist)
}

func (s *PartySuite) TestRemoveMemberPromotesWaitlistHead() {
	s.party.AddMember(2, "Two", 1000)
	s.party.AddMember(3, "Three", 1000)
	s.party.AddMember(4, "Four", 1000)
	s.party.AddMember(5, "Five", 1000)

	promoted := s.party.RemoveMember(2)
	s.Require().NotNil(promoted)
	s.Equal(UserID(4), promoted.UserID)
	s.Equal(3, s.party.Size())

	// Remaining waitlist keeps FIFO order
	s.Len(s.party.Waitlist, 1)
	s.Equal(UserID(5), s.party.Waitlist[0].UserID)
}

func (s *PartySuite) TestRemoveOwnerReassignsToEarliestJoined() {
	s.party.AddMember(2, "Two", 1000)
	s.party.AddMember(3, "Three", 1000)

	s.party.RemoveMember(1)
	s.Require().NotNil(s.party.OwnerID)
	s.Equal(UserID(2), *s.party.OwnerID)
}

func (s *PartySuite) TestRemoveLastMemberUnsetsOwner() {
	s.party.RemoveMember(1)
	s.Nil(s.party.OwnerID)
	s.Equal(0, s.party.Size())
}

func (s *PartySuite) TestRemoveUnknownUserIsNoOp() {
	s.party.AddMember(2, "Two", 1000)
	s.party.AddMember(3, "Three", 1000)
	s.party.AddMember(4, "Four", 1000)

	promoted := s.party.RemoveMember(99)
	s.Nil(promoted)
	s.Equal(3, s.party.Size())
	s.Len(s.party.Waitlist, 1)
	s.Equal(UserID(4), s.party.Waitlist[0].UserID)
}

func (s *PartySuite) TestRemoveNonOwnerKeepsOwner() {
	s.party.AddMember(2, "Two", 1000)
	s.party.RemoveMember(2)
	s.Require().NotNil(s.party.OwnerID)
	s.Equal(UserID(1), *s.party.OwnerID)
}

func (s *PartySuite) TestSummary() {
	s.party.AddMember(2, "Two", 850)
	s.party.AddMember(3, "Three", 1000)
	s.party.AddMember(4, "Four", 1000)

	summary := s.party.Summary()
	s.Equal(0, summary.RemainingSlots)
	s.Require().Len(summary.Members, 3)
	s.True(summary.Members[0].IsOwner)
	s.False(summary.Members[1].IsOwner)
	s.True(summary.Members[1].LowBalance)
	s.False(summary.Members[2].LowBalance)
	s.Require().Len(summary.Waitlist, 1)
	s.Equal(UserID(4), summary.Waitlist[0].UserID)
}

func (s *PartySuite) TestSummaryRemainingSlots() {
	summary := s.party.Summary()
	s.Equal(2, summary.RemainingSlots)
}

func (s *PartySuite) TestCreditLogEntryDelta() {
	entry := CreditLogEntry{PrevBalance: 1000, NewBalance: 840}
	s.Equal(-160, entry.Delta())
	s.True(entry.IsPenalty())

	entry = CreditLogEntry{PrevBalance: 1000, NewBalance: 1012}
	s.Equal(12, entry.Delta())
	s.False(entry.IsPenalty())
}
