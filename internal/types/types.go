// Package types holds the data model shared by the scan, generate and
// submit stages of a pass.
package types

import "time"

// Profile is one automated account. Loaded once per pass and read-only
// for the rest of it.
type Profile struct {
	ID             string   `json:"id" yaml:"id"`
	Active         bool     `json:"active" yaml:"active"`
	TargetListURLs []string `json:"target_lists" yaml:"target_lists"`
	// Cookies is the opaque session-credential blob (a JSON cookie array).
	Cookies string `json:"-" yaml:"cookies"`
}

// Candidate is a discovered post eligible for a reply. Candidates live for
// one list scan; only PostID outlives them, inside the seen store.
type Candidate struct {
	PostID           string
	Author           string
	Text             string
	MediaDescription string
	SourceListURL    string
	DiscoveredAt     time.Time
}

// Status is the terminal state of one submission attempt.
type Status string

const (
	StatusSubmitted          Status = "submitted"
	StatusVerificationFailed Status = "verification_failed"
	StatusGenerationFailed   Status = "generation_failed"
	StatusInteractionError   Status = "interaction_error"
)

// ReplyOutcome is the result of one submission attempt.
type ReplyOutcome struct {
	CandidateID string
	Status      Status
	ReplyText   string // empty when generation failed
	Err         error
}

// OK reports whether the reply was submitted and verified.
func (o ReplyOutcome) OK() bool {
	return o.Status == StatusSubmitted
}
