package model

import (
	"time"
)

// Options is the fixed closed set of vote options. It is the single
// authority shared by submission validation, tally zero-fill and the
// results payload; clients enumerate it but are never trusted for it.
var Options = []string{"Option A", "Option B", "Option C"}

// ValidOption reports whether label belongs to the fixed option set.
func ValidOption(label string) bool {
	for _, opt := range Options {
		if opt == label {
			return true
		}
	}
	return false
}

// User is an identity keyed by display name. HasVoted is a projection
// kept in step with the ledger; the ledger's unique index, not this
// flag, is what rejects duplicate votes.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HasVoted  bool      `json:"hasVoted"`
	CreatedAt time.Time `json:"createdAt"`
}

// Vote is one immutable ledger record. Votes are never updated or
// deleted once written.
type Vote struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Option    string    `json:"option"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tally maps every option in the fixed set to its current count,
// zero-filled for options with no votes.
type Tally map[string]int

// Identity is the subject bound into a credential at login.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Name string `json:"name"`
}

// LoginResponse carries the signed time-bounded credential.
type LoginResponse struct {
	Token string `json:"token"`
}

// VoteRequest is the body of POST /api/vote.
type VoteRequest struct {
	Option string `json:"option"`
}

// HistoryEntry is one row of the caller's recent vote history.
type HistoryEntry struct {
	Option    string    `json:"option"`
	Timestamp time.Time `json:"timestamp"`
}

// VoteEvent is the vote-cast notification pushed to live sessions.
// Receivers treat it as informational only; tally-update remains the
// authority for counts.
type VoteEvent struct {
	Voter     string    `json:"voter"`
	Option    string    `json:"option"`
	Timestamp time.Time `json:"timestamp"`
}
