package party

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/sailclub/sailcredit/internal/dependencies/mocks"
	"github.com/sailclub/sailcredit/internal/model"
	"github.com/sailclub/sailcredit/internal/scheduler"
	"github.com/sailclub/sailcredit/internal/services/adjudication"
	"github.com/sailclub/sailcredit/internal/services/bureau"
	"github.com/sailclub/sailcredit/internal/storage/memory"
	"github.com/sailclub/sailcredit/internal/testutil"
)

type captureSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *captureSink) Publish(event model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) byType(t model.EventType) []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []model.Event
	for _, e := range c.events {
		if e.Type == t {
			matched = append(matched, e)
		}
	}
	return matched
}

type RegistrySuite struct {
	suite.Suite
	ctx          context.Context
	clock        *mocks.MockClock
	store        *memory.Storage
	sink         *captureSink
	adjudication *adjudication.Manager
	registry     *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = mocks.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s.store = memory.New()
	s.sink = &captureSink{}

	logger := testutil.NopLogger()
	sched := scheduler.New(s.clock, logger)
	bureauService := bureau.New(s.store, s.clock, logger)
	s.adjudication = adjudication.NewManager(bureauService, sched, s.clock, s.sink, logger)
	s.registry = NewRegistry(bureauService, s.adjudication, sched, s.clock, s.sink, logger)
}

func (s *RegistrySuite) create(opts CreateOptions) *model.Party {
	party, err := s.registry.CreateParty(s.ctx, 1, "Alice", opts)
	s.Require().NoError(err)
	return party
}

func (s *RegistrySuite) join(partyID model.PartyID, userID model.UserID) bool {
	waitlisted, err := s.registry.JoinParty(s.ctx, partyID, userID, "member")
	s.Require().NoError(err)
	return waitlisted
}

func (s *RegistrySuite) TestCreatePartyDefaults() {
	party := s.create(CreateOptions{Topic: "sailing"})

	s.Equal("Alice's sailing Party", party.Name)
	s.Equal(model.DefaultMaxSize, party.MaxSize)
	s.Equal(model.PartyStatusAssembling, party.Status)
	s.Require().NotNil(party.StartsAt)
	s.Equal(s.clock.Now().Add(DefaultStartDelay), *party.StartsAt)

	s.Require().NotNil(party.OwnerID)
	s.Equal(model.UserID(1), *party.OwnerID)
	s.Require().Equal(1, party.Size())
	s.Equal(model.StartingBalance, party.Members[0].CachedBalance)

	s.Len(s.sink.byType(model.EventPartyCreated), 1)
}

func (s *RegistrySuite) TestCreatePartyExplicitOptions() {
	startAt := s.clock.Now().Add(30 * time.Minute)
	party := s.create(CreateOptions{
		Topic:   "chess",
		Name:    "Blitz Night",
		MaxSize: 3,
		StartAt: &startAt,
	})

	s.Equal("Blitz Night", party.Name)
	s.Equal(3, party.MaxSize)
	s.Equal(startAt, *party.StartsAt)
}

func (s *RegistrySuite) TestCreatePartyClampsPastStart() {
	startAt := s.clock.Now().Add(-time.Hour)
	party := s.create(CreateOptions{Topic: "sailing", StartAt: &startAt})
	s.Equal(s.clock.Now().Add(MinStartDelay), *party.StartsAt)
}

func (s *RegistrySuite) TestCreatePartyClampsFarFuture() {
	startAt := s.clock.Now().Add(24 * time.Hour)
	party := s.create(CreateOptions{Topic: "sailing", StartAt: &startAt})
	s.Equal(s.clock.Now().Add(MaxStartDelay), *party.StartsAt)
}

func (s *RegistrySuite) TestGetPartyUnknown() {
	_, err := s.registry.GetParty(uuid.New())
	s.ErrorIs(err, model.ErrPartyNotFound)
}

func (s *RegistrySuite) TestJoinParty() {
	party := s.create(CreateOptions{Topic: "sailing", MaxSize: 2})

	s.False(s.join(party.ID, 2))
	s.Len(s.sink.byType(model.EventMemberJoined), 1)

	_, err := s.registry.JoinParty(s.ctx, party.ID, 2, "member")
	s.ErrorIs(err, model.ErrAlreadyMember)
}

func (s *RegistrySuite) TestJoinFullPartyWaitlists() {
	party := s.create(CreateOptions{Topic: "sailing", MaxSize: 2})
	s.join(party.ID, 2)

	s.True(s.join(party.ID, 3))
	s.Len(s.sink.byType(model.EventMemberWaitlisted), 1)

	_, err := s.registry.JoinParty(s.ctx, party.ID, 3, "member")
	s.ErrorIs(err, model.ErrAlreadyWaitlisted)
}

func (s *RegistrySuite) TestJoinUnknownParty() {
	_, err := s.registry.JoinParty(s.ctx, uuid.New(), 2, "member")
	s.ErrorIs(err, model.ErrPartyNotFound)
}

func (s *RegistrySuite) TestLeavePartyPromotesWaitlistHead() {
	party := s.create(CreateOptions{Topic: "sailing", MaxSize: 2})
	s.join(party.ID, 2)
	s.join(party.ID, 3)

	promoted, err := s.registry.LeaveParty(s.ctx, party.ID, 2)
	s.Require().NoError(err)
	s.Require().NotNil(promoted)
	s.Equal(model.UserID(3), promoted.UserID)
	s.Len(s.sink.byType(model.EventMemberPromoted), 1)
}

func (s *RegistrySuite) TestLeavePartyTransfersOwnership() {
	party := s.create(CreateOptions{Topic: "sailing"})
	s.join(party.ID, 2)

	_, err := s.registry.LeaveParty(s.ctx, party.ID, 1)
	s.Require().NoError(err)
	s.Require().NotNil(party.OwnerID)
	s.Equal(model.UserID(2), *party.OwnerID)

	changed := s.sink.byType(model.EventOwnerChanged)
	s.Require().Len(changed, 1)
	payload := changed[0].Payload.(model.OwnerChangedPayload)
	s.Equal(model.UserID(1), payload.OldOwnerID)
	s.Equal(model.UserID(2), payload.NewOwnerID)
}

func (s *RegistrySuite) TestLeaveLastMemberAbandonsParty() {
	party := s.create(CreateOptions{Topic: "sailing"})

	_, err := s.registry.LeaveParty(s.ctx, party.ID, 1)
	s.Require().NoError(err)

	_, err = s.registry.GetParty(party.ID)
	s.ErrorIs(err, model.ErrPartyNotFound)
	s.Len(s.sink.byType(model.EventPartyAbandoned), 1)

	// The cancelled auto-start job never fires
	s.clock.Advance(time.Hour)
	s.Empty(s.sink.byType(model.EventAutoStartTooFew))
}

func (s *RegistrySuite) TestLeavePartyNotAMember() {
	party := s.create(CreateOptions{Topic: "sailing"})
	_, err := s.registry.LeaveParty(s.ctx, party.ID, 99)
	s.ErrorIs(err, model.ErrNotAMember)
}

func (s *RegistrySuite) TestStartPartyGuards() {
	party := s.create(CreateOptions{Topic: "sailing"})
	s.join(party.ID, 2)

	_, err := s.registry.StartParty(party.ID, 2)
	s.ErrorIs(err, model.ErrNotOwner)

	solo := s.create(CreateOptions{Topic: "darts"})
	_, err = s.registry.StartParty(solo.ID, 1)
	s.ErrorIs(err, model.ErrInsufficientMembers)
}

func (s *RegistrySuite) TestStartPartyManually() {
	party := s.create(CreateOptions{Topic: "sailing", MaxSize: 2})
	s.join(party.ID, 2)

	w, err := s.registry.StartParty(party.ID, 1)
	s.Require().NoError(err)
	s.Require().NotNil(w)

	_, err = s.registry.GetParty(party.ID)
	s.ErrorIs(err, model.ErrPartyNotFound)
	s.NotNil(s.adjudication.Get(party.ID))

	started := s.sink.byType(model.EventPartyStarted)
	s.Require().Len(started, 1)
	payload := started[0].Payload.(model.PartyStartedPayload)
	s.False(payload.Automatic)
	s.Equal([]model.UserID{1, 2}, payload.Members)
}

func (s *RegistrySuite) TestStartedPartyLapsesIntoRewards() {
	party := s.create(CreateOptions{Topic: "sailing", MaxSize: 2})
	s.join(party.ID, 2)

	_, err := s.registry.StartParty(party.ID, 1)
	s.Require().NoError(err)

	s.clock.Advance(adjudication.WindowDuration)

	// Two-member party: ceil(20 * 0.6) = 12 each
	for id := model.UserID(1); id <= 2; id++ {
		balance, err := s.store.GetBalance(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(1012, balance)
	}
}

func (s *RegistrySuite) TestCancelParty() {
	party := s.create(CreateOptions{Topic: "sailing"})
	s.join(party.ID, 2)

	s.ErrorIs(s.registry.CancelParty(party.ID, 2), model.ErrNotOwner)
	s.Require().NoError(s.registry.CancelParty(party.ID, 1))

	_, err := s.registry.GetParty(party.ID)
	s.ErrorIs(err, model.ErrPartyNotFound)
	s.Len(s.sink.byType(model.EventPartyCancelled), 1)

	// Cancelled parties never auto-start or score. Members keep their
	// seeded balance and an empty history.
	s.clock.Advance(time.Hour)
	s.Empty(s.sink.byType(model.EventPartyStarted))
	balance, err := s.store.GetBalance(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(model.StartingBalance, balance)
	entries, err := s.store.QueryLog(s.ctx, 2, time.Time{}, false)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *RegistrySuite) TestAutoStartFullParty() {
	party := s.create(CreateOptions{Topic: "sailing", MaxSize: 2})
	s.join(party.ID, 2)

	s.clock.Advance(DefaultStartDelay)

	_, err := s.registry.GetParty(party.ID)
	s.ErrorIs(err, model.ErrPartyNotFound)
	s.NotNil(s.adjudication.Get(party.ID))

	started := s.sink.byType(model.EventPartyStarted)
	s.Require().Len(started, 1)
	s.True(started[0].Payload.(model.PartyStartedPayload).Automatic)
}

func (s *RegistrySuite) TestAutoStartTooFewMembersRemovesParty() {
	party := s.create(CreateOptions{Topic: "sailing"})

	s.clock.Advance(DefaultStartDelay)

	_, err := s.registry.GetParty(party.ID)
	s.ErrorIs(err, model.ErrPartyNotFound)
	s.Nil(s.adjudication.Get(party.ID))
	s.Len(s.sink.byType(model.EventAutoStartTooFew), 1)
	s.Empty(s.sink.byType(model.EventPartyStarted))
}

func (s *RegistrySuite) TestAutoStartViableButNotFullStaysLive() {
	party := s.create(CreateOptions{Topic: "sailing", MaxSize: 3})
	s.join(party.ID, 2)

	s.clock.Advance(DefaultStartDelay)

	got, err := s.registry.GetParty(party.ID)
	s.Require().NoError(err)
	s.Nil(got.StartsAt)
	s.Len(s.sink.byType(model.EventAutoStartSkipped), 1)

	// Unscheduled, not dead: the owner can still start it manually
	w, err := s.registry.StartParty(party.ID, 1)
	s.Require().NoError(err)
	s.NotNil(w)
}

func (s *RegistrySuite) TestRescheduleStart() {
	party := s.create(CreateOptions{Topic: "sailing"})
	base := *party.StartsAt

	newRun := s.registry.RescheduleStart(party.ID, 30)
	s.Require().NotNil(newRun)
	s.Equal(base.Add(30*time.Minute), *newRun)
	s.Equal(*newRun, *party.StartsAt)
	s.Len(s.sink.byType(model.EventStartRescheduled), 1)
}

func (s *RegistrySuite) TestRescheduleStartClampsIntoBounds() {
	party := s.create(CreateOptions{Topic: "sailing"})

	newRun := s.registry.RescheduleStart(party.ID, -600)
	s.Require().NotNil(newRun)
	s.Equal(s.clock.Now().Add(MinStartDelay), *newRun)

	newRun = s.registry.RescheduleStart(party.ID, 100000)
	s.Require().NotNil(newRun)
	s.Equal(s.clock.Now().Add(MaxStartDelay), *newRun)
}

func (s *RegistrySuite) TestRescheduleStartAfterUnscheduleReturnsNil() {
	party := s.create(CreateOptions{Topic: "sailing", MaxSize: 3})
	s.join(party.ID, 2)

	s.clock.Advance(DefaultStartDelay)
	s.Nil(s.registry.RescheduleStart(party.ID, 30))
}

func (s *RegistrySuite) TestRescheduleStartUnknownParty() {
	s.Nil(s.registry.RescheduleStart(uuid.New(), 30))
}

func (s *RegistrySuite) TestRemovePartyIdempotent() {
	party := s.create(CreateOptions{Topic: "sailing"})
	s.registry.RemoveParty(party.ID)
	s.registry.RemoveParty(party.ID)
	s.registry.RemoveParty(uuid.New())
}

func (s *RegistrySuite) TestConvictionEndToEnd() {
	party := s.create(CreateOptions{Topic: "sailing", MaxSize: 4})
	for id := model.UserID(2); id <= 4; id++ {
		s.join(party.ID, id)
	}

	// Full party auto-starts
	s.clock.Advance(DefaultStartDelay)
	w := s.adjudication.Get(party.ID)
	s.Require().NotNil(w)

	s.Require().NoError(w.ReportMember(1, 4, "no-show"))
	s.Require().NoError(w.CastVote(s.ctx, 1, true))
	s.Require().NoError(w.CastVote(s.ctx, 2, true))

	// Quorum of 2 for a 4-max party convicts: floor(-200 * 0.84) = -168
	s.Equal(model.PartyStatusFailed, party.Status)
	balance, err := s.store.GetBalance(s.ctx, 4)
	s.Require().NoError(err)
	s.Equal(832, balance)

	// Nobody else was scored: joining seeds the balance but writes no
	// log entry.
	balance, err = s.store.GetBalance(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(model.StartingBalance, balance)
	entries, err := s.store.QueryLog(s.ctx, 1, time.Time{}, false)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *RegistrySuite) TestSummary() {
	party := s.create(CreateOptions{Topic: "sailing", MaxSize: 2})
	s.join(party.ID, 2)
	s.join(party.ID, 3)

	summary, err := s.registry.Summary(party.ID)
	s.Require().NoError(err)
	s.Equal(0, summary.RemainingSlots)
	s.Len(summary.Members, 2)
	s.Len(summary.Waitlist, 1)

	_, err = s.registry.Summary(uuid.New())
	s.ErrorIs(err, model.ErrPartyNotFound)
}

func (s *RegistrySuite) TestListPartiesFor() {
	first := s.create(CreateOptions{Topic: "sailing"})
	s.clock.Advance(time.Second)
	second, err := s.registry.CreateParty(s.ctx, 2, "Bob", CreateOptions{Topic: "chess"})
	s.Require().NoError(err)
	s.join(second.ID, 1)

	all := s.registry.ListPartiesFor(1, false)
	s.Require().Len(all, 2)
	s.Equal(first.ID, all[0].ID)
	s.Equal(second.ID, all[1].ID)

	owned := s.registry.ListPartiesFor(1, true)
	s.Require().Len(owned, 1)
	s.Equal(first.ID, owned[0].ID)
}

func (s *RegistrySuite) TestSearchByTopic() {
	s.create(CreateOptions{Topic: "sailing"})
	s.clock.Advance(time.Second)
	s.create(CreateOptions{Topic: "chess"})

	found := s.registry.SearchByTopic("sailing")
	s.Require().Len(found, 1)
	s.Equal("sailing", found[0].Topic)

	s.Empty(s.registry.SearchByTopic("karaoke"))
}
