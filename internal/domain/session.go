package domain

import (
	"time"
)

// Role identifies the author of a transcript message.
type Role string

// Transcript roles. Values are part of the wire format.
const (
	RoleUser   Role = "User"
	RoleAgent  Role = "Agent"
	RoleSystem Role = "System"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleSystem:
		return true
	}
	return false
}

// Message is a single transcript entry.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Phase is the lifecycle position of an interview session.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseActive     Phase = "active"
	PhaseComplete   Phase = "complete"
)

// Session holds the state of one interview.
type Session struct {
	ID         string
	Phase      Phase
	Transcript []Message
	Report     *StructuredReport
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ExpiresAt  time.Time
}

// Active reports whether the interview is accepting user turns.
func (s *Session) Active() bool {
	return s != nil && s.Phase == PhaseActive
}

// Complete reports whether the interview has produced its report.
func (s *Session) Complete() bool {
	return s != nil && s.Phase == PhaseComplete
}

// UserTurns counts the user-authored messages in the transcript.
func (s *Session) UserTurns() int {
	if s == nil {
		return 0
	}
	return CountUserTurns(s.Transcript)
}

// Expired reports whether the session's lifetime ended before now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy so callers can propose changes without
// mutating stored state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Transcript = CloneTranscript(s.Transcript)
	if s.Report != nil {
		r := s.Report.Clone()
		c.Report = &r
	}
	return &c
}

// CountUserTurns counts the User messages in a transcript.
func CountUserTurns(transcript []Message) int {
	n := 0
	for _, m := range transcript {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// CloneTranscript copies a transcript. A nil input yields an empty, non-nil slice.
func CloneTranscript(transcript []Message) []Message {
	out := make([]Message, len(transcript))
	copy(out, transcript)
	return out
}
