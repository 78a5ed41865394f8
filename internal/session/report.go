package session

import (
	"time"

	"github.com/dlps55195/x-bot-worker/internal/types"
)

// ListStatus is the terminal state of one list visit.
type ListStatus string

const (
	ListCompleted         ListStatus = "completed"
	ListAuthExpired       ListStatus = "auth_expired"
	ListSkipped           ListStatus = "skipped"
	ListNavigationTimeout ListStatus = "navigation_timeout"
	ListNavigationFailed  ListStatus = "navigation_failed"
	ListRenderTimeout     ListStatus = "render_timeout"
	ListScanFailed        ListStatus = "scan_failed"
	ListCancelled         ListStatus = "cancelled"
)

// ListReport records one list visit.
type ListReport struct {
	URL        string
	Status     ListStatus
	Candidates int
	Outcomes   []types.ReplyOutcome
	Err        error
}

// Submitted counts verified replies.
func (l ListReport) Submitted() int {
	n := 0
	for _, o := range l.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// ProfileStatus is the terminal state of one profile.
type ProfileStatus string

const (
	ProfileCompleted   ProfileStatus = "completed"
	ProfileAuthExpired ProfileStatus = "auth_expired"
	ProfileFailed      ProfileStatus = "failed"
	ProfileCancelled   ProfileStatus = "cancelled"
)

// ProfileReport records one profile's lists.
type ProfileReport struct {
	ProfileID string
	Status    ProfileStatus
	Lists     []ListReport
	Err       error
}

// Submitted counts verified replies across the profile's lists.
func (p ProfileReport) Submitted() int {
	n := 0
	for _, l := range p.Lists {
		n += l.Submitted()
	}
	return n
}

// Report is the result of one pass.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Profiles   []ProfileReport
	// Err is set only when the profile store could not be read.
	Err       error
	Cancelled bool
}

// Submitted counts verified replies across the pass.
func (r Report) Submitted() int {
	n := 0
	for _, p := range r.Profiles {
		n += p.Submitted()
	}
	return n
}

// Counts tallies reply outcomes by status.
func (r Report) Counts() map[types.Status]int {
	counts := make(map[types.Status]int)
	for _, p := range r.Profiles {
		for _, l := range p.Lists {
			for _, o := range l.Outcomes {
				counts[o.Status]++
			}
		}
	}
	return counts
}
