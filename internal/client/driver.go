package client

import (
	"context"
	"strings"
	"sync"

	"github.com/ashureev/symptom-intake/internal/domain"
)

// RoleError marks a client-side error message. The server never sends it.
const RoleError domain.Role = "Error"

// Driver mirrors the server's interview state for one user. At most one
// request is in flight; submissions made while one is pending are ignored.
type Driver struct {
	transport Transport

	mu        sync.Mutex
	sessionID string
	active    bool
	complete  bool
	pending   bool
	messages  []domain.Message
	draft     string
	report    *domain.StructuredReport
}

// NewDriver creates a driver in the not-started state.
func NewDriver(t Transport) *Driver {
	return &Driver{transport: t}
}

// Submit sends text as the initial symptom or the next answer. It returns
// false without contacting the server when a request is pending, the
// interview is complete, or text is blank. On failure an Error message is
// appended; an active interview keeps the text as Draft, otherwise the
// driver returns to the not-started state.
func (d *Driver) Submit(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)

	d.mu.Lock()
	if d.pending || d.complete || text == "" {
		d.mu.Unlock()
		return false, nil
	}
	d.pending = true
	wasActive := d.active
	sessionID := d.sessionID
	d.draft = ""
	d.messages = append(d.messages, domain.Message{Role: domain.RoleUser, Text: text})
	d.mu.Unlock()

	var (
		start StartReply
		turn  TurnReply
		err   error
	)
	if wasActive {
		turn, err = d.transport.Continue(ctx, sessionID, text)
	} else {
		start, err = d.transport.Start(ctx, text)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = false

	if err != nil {
		d.messages = append(d.messages, domain.Message{Role: RoleError, Text: err.Error()})
		if wasActive {
			d.draft = text
		} else {
			d.active = false
			d.sessionID = ""
		}
		return true, err
	}

	switch {
	case !wasActive:
		d.sessionID = start.SessionID
		d.active = true
		d.messages = append(d.messages, domain.Message{Role: domain.RoleAgent, Text: start.NextQuestion})
	case turn.IsComplete:
		d.active = false
		d.complete = true
		if n := len(turn.History); n > 0 && turn.History[n-1].Role == domain.RoleSystem {
			d.messages = append(d.messages, turn.History[n-1])
		}
		if turn.Report != nil {
			report := turn.Report.Clone()
			d.report = &report
		}
	default:
		d.messages = append(d.messages, domain.Message{Role: domain.RoleAgent, Text: turn.NextQuestion})
	}
	return true, nil
}

// SessionID returns the server-issued token, if any.
func (d *Driver) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// Active reports whether an interview is in progress.
func (d *Driver) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Complete reports whether the interview has finished.
func (d *Driver) Complete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.complete
}

// Pending reports whether a request is in flight.
func (d *Driver) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Draft returns text restored after a failed turn.
func (d *Driver) Draft() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draft
}

// Messages returns the rendered conversation, Error messages included.
func (d *Driver) Messages() []domain.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return domain.CloneTranscript(d.messages)
}

// Report returns the final report once the interview is complete.
func (d *Driver) Report() (domain.StructuredReport, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.report == nil {
		return domain.StructuredReport{}, false
	}
	return d.report.Clone(), true
}
