// Package suggest lets users submit suggestions to the owner and lets
// admins approve or reject them with a comment.
package suggest

import (
	"time"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
)

// Resolution is the review outcome of a suggestion. It changes once.
type Resolution int

const (
	Pending Resolution = iota
	Approved
	Rejected
)

func (r Resolution) String() string {
	switch r {
	case Pending:
		return "pending"
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Action is a reviewer's decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func (a Action) resolution() (Resolution, bool) {
	switch a {
	case ActionApprove:
		return Approved, true
	case ActionReject:
		return Rejected, true
	}
	return Pending, false
}

// Suggestion is one user submission.
type Suggestion struct {
	ID          string
	SubmitterID core.UserID
	Username    string
	Text        string
	Photo       *post.Media
	SubmittedAt time.Time
	Resolution  Resolution
	Inbox       core.Handle
	ReviewerID  core.UserID
	Comment     string

	// inReview is set once a reviewer has pressed a decision button.
	inReview bool
}

// ShortID returns the first eight characters of the ID.
func (s *Suggestion) ShortID() string {
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}

func (s *Suggestion) clone() *Suggestion {
	c := *s
	if s.Photo != nil {
		m := *s.Photo
		c.Photo = &m
	}
	return &c
}
