package model

import "time"

// EventType identifies the type of event
type EventType string

const (
	// Party lifecycle events
	EventPartyCreated     EventType = "party_created"
	EventMemberJoined     EventType = "member_joined"
	EventMemberWaitlisted EventType = "member_waitlisted"
	EventMemberLeft       EventType = "member_left"
	EventMemberPromoted   EventType = "member_promoted"
	EventOwnerChanged     EventType = "owner_changed"
	EventPartyCancelled   EventType = "party_cancelled"
	EventPartyAbandoned   EventType = "party_abandoned"
	EventPartyStarted     EventType = "party_started"
	EventPartySucceeded   EventType = "party_succeeded"

	// Auto-start outcomes
	EventAutoStartTooFew  EventType = "auto_start_too_few"
	EventAutoStartSkipped EventType = "auto_start_skipped"
	EventStartRescheduled EventType = "start_rescheduled"

	// Adjudication events
	EventFlakeReported EventType = "flake_reported"
	EventVoteCast      EventType = "vote_cast"
	EventVoteClosed    EventType = "vote_closed"
	EventVoteTimedOut  EventType = "vote_timed_out"
)

// Event is the base structure for all events
type Event struct {
	Type      EventType
	Timestamp time.Time
	PartyID   PartyID
	UserID    UserID // The user who triggered or is affected; zero for party-wide events
	Payload   any    // Type-specific data
}

// MemberJoinedPayload contains data for member joined/waitlisted events
type MemberJoinedPayload struct {
	Member     PartyMember
	Waitlisted bool
}

// MemberLeftPayload contains data for member left events
type MemberLeftPayload struct {
	UserID   UserID
	Promoted *PartyMember // waitlist head promoted in their place, if any
}

// OwnerChangedPayload contains data for owner changed events
type OwnerChangedPayload struct {
	OldOwnerID UserID
	NewOwnerID UserID
}

// PartyStartedPayload contains data for party started events
type PartyStartedPayload struct {
	Members   []UserID
	Automatic bool
}

// PartySucceededPayload contains the rewards issued on success
type PartySucceededPayload struct {
	Rewards []CreditResult
}

// FlakeReportedPayload contains data for flake reported events
type FlakeReportedPayload struct {
	ReporterID UserID
	ReporteeID UserID
	Reason     string
}

// VoteCastPayload contains data for vote cast events
type VoteCastPayload struct {
	VoterID UserID
	Convict bool
	Tally   VoteTally
}

// VoteClosedPayload contains data for vote closed events
type VoteClosedPayload struct {
	ReporteeID UserID
	Convicted  bool
	Penalty    *CreditResult // set only on conviction
}

// VoteTally is the current standing of an open flake vote
type VoteTally struct {
	ConvictVotes int
	AcquitVotes  int
	Quorum       int
}
