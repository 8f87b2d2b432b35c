package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/sailclub/sailcredit/internal/dependencies/mocks"
	"github.com/sailclub/sailcredit/internal/testutil"
)

type SchedulerSuite struct {
	suite.Suite
	clock *mocks.MockClock
	sched *Scheduler
	fired []string
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s.sched = New(s.clock, testutil.NopLogger())
	s.fired = nil
}

func (s *SchedulerSuite) record(id string) {
	s.fired = append(s.fired, id)
}

func (s *SchedulerSuite) TestFiresAtRunTime() {
	runAt := s.clock.Now().Add(5 * time.Minute)
	s.sched.Schedule("a", runAt, s.record)

	s.clock.Advance(4 * time.Minute)
	s.Empty(s.fired)

	s.clock.Advance(time.Minute)
	s.Equal([]string{"a"}, s.fired)
}

func (s *SchedulerSuite) TestFiresAtMostOnce() {
	s.sched.Schedule("a", s.clock.Now().Add(time.Minute), s.record)
	s.clock.Advance(time.Minute)
	s.clock.Advance(time.Hour)
	s.Equal([]string{"a"}, s.fired)
}

func (s *SchedulerSuite) TestPastRunTimeFiresImmediately() {
	s.sched.Schedule("a", s.clock.Now().Add(-time.Minute), s.record)
	s.clock.Advance(0)
	s.Equal([]string{"a"}, s.fired)
}

func (s *SchedulerSuite) TestCancelPreventsFiring() {
	s.sched.Schedule("a", s.clock.Now().Add(time.Minute), s.record)
	s.sched.Cancel("a")
	s.clock.Advance(time.Hour)
	s.Empty(s.fired)
}

func (s *SchedulerSuite) TestCancelUnknownIsNoOp() {
	s.sched.Cancel("missing")
}

func (s *SchedulerSuite) TestScheduleReplacesPendingJob() {
	s.sched.Schedule("a", s.clock.Now().Add(time.Minute), func(string) {
		s.fired = append(s.fired, "old")
	})
	s.sched.Schedule("a", s.clock.Now().Add(2*time.Minute), func(string) {
		s.fired = append(s.fired, "new")
	})

	s.clock.Advance(time.Hour)
	s.Equal([]string{"new"}, s.fired)
}

func (s *SchedulerSuite) TestReschedule() {
	s.sched.Schedule("a", s.clock.Now().Add(time.Minute), s.record)
	s.True(s.sched.Reschedule("a", s.clock.Now().Add(10*time.Minute)))

	s.clock.Advance(5 * time.Minute)
	s.Empty(s.fired)

	s.clock.Advance(5 * time.Minute)
	s.Equal([]string{"a"}, s.fired)
}

func (s *SchedulerSuite) TestRescheduleUnknownReturnsFalse() {
	s.False(s.sched.Reschedule("missing", s.clock.Now().Add(time.Minute)))
}

func (s *SchedulerSuite) TestRescheduleAfterFireReturnsFalse() {
	s.sched.Schedule("a", s.clock.Now().Add(time.Minute), s.record)
	s.clock.Advance(time.Minute)
	s.False(s.sched.Reschedule("a", s.clock.Now().Add(time.Minute)))
}

func (s *SchedulerSuite) TestRunAt() {
	runAt := s.clock.Now().Add(7 * time.Minute)
	s.sched.Schedule("a", runAt, s.record)

	got, ok := s.sched.RunAt("a")
	s.True(ok)
	s.Equal(runAt, got)

	_, ok = s.sched.RunAt("missing")
	s.False(ok)

	s.clock.Advance(7 * time.Minute)
	_, ok = s.sched.RunAt("a")
	s.False(ok)
}

func (s *SchedulerSuite) TestIndependentJobsFireInOrder() {
	s.sched.Schedule("b", s.clock.Now().Add(2*time.Minute), s.record)
	s.sched.Schedule("a", s.clock.Now().Add(time.Minute), s.record)

	s.clock.Advance(time.Hour)
	s.Equal([]string{"a", "b"}, s.fired)
}

func (s *SchedulerSuite) TestStopCancelsEverything() {
	s.sched.Schedule("a", s.clock.Now().Add(time.Minute), s.record)
	s.sched.Stop()

	s.clock.Advance(time.Hour)
	s.Empty(s.fired)

	s.sched.Schedule("b", s.clock.Now().Add(time.Minute), s.record)
	s.clock.Advance(time.Hour)
	s.Empty(s.fired)
}
