package model

import "errors"

// Common errors used across the application
var (
	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Party errors
	ErrPartyNotFound       = errors.New("party not found")
	ErrAlreadyMember       = errors.New("user is already in the party")
	ErrAlreadyWaitlisted   = errors.New("user is already on the waitlist")
	ErrNotAMember          = errors.New("user is not in the party")
	ErrNotOwner            = errors.New("user is not the party owner")
	ErrInsufficientMembers = errors.New("not enough members to start the party")

	// Adjudication errors
	ErrVoteAlreadyOpen  = errors.New("a flake vote is already open")
	ErrAlreadyReported  = errors.New("member has already been reported")
	ErrNotEligibleVoter = errors.New("user is not eligible to vote")
	ErrAlreadyVoted     = errors.New("user has already cast this vote")
	ErrNoVoteOpen       = errors.New("no flake vote is open")
	ErrWindowClosed     = errors.New("adjudication window has closed")
)
