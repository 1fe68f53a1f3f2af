// Package transcriptlog writes interview events as NDJSON, one file per
// session plus an optional combined file.
package transcriptlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event types.
const (
	EventUserMessage     = "user_message"
	EventAgentQuestion   = "agent_question"
	EventCompleted       = "interview_completed"
	EventReasoningFailed = "reasoning_failed"
	EventAbandoned       = "interview_abandoned"
)

// Event is one log line.
type Event struct {
	Timestamp time.Time `json:"ts"`
	SessionID string    `json:"session_id"`
	EventType string    `json:"event_type"`
	Role      string    `json:"role,omitempty"`
	Turn      int       `json:"turn"`
	Content   string    `json:"content,omitempty"`
	Forced    bool      `json:"forced,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Logger accepts events without blocking the caller.
type Logger interface {
	Log(Event)
	Close() error
}

// Config controls the file logger.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// New returns a file logger, or a no-op logger when cfg.Enabled is false.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript log dir: %w", err)
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global transcript log dir: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &fileLogger{
		cfg:    cfg,
		queue:  make(chan Event, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Log(Event)    {}
func (Nop) Close() error { return nil }

type fileLogger struct {
	cfg       Config
	queue     chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
	closeOnce sync.Once
}

// Log enqueues an event. When the queue is full the oldest event is dropped.
func (l *fileLogger) Log(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Content = cleanForReadability(e.Content)

	select {
	case <-l.ctx.Done():
		return
	default:
	}

	select {
	case l.queue <- e:
		return
	default:
	}

	l.logger.Warn("Transcript log queue full, dropping oldest event", "session_id", e.SessionID)
	select {
	case <-l.queue:
	default:
	}
	select {
	case l.queue <- e:
	default:
		l.logger.Warn("Transcript log event dropped", "session_id", e.SessionID, "event_type", e.EventType)
	}
}

func (l *fileLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case e := <-l.queue:
			l.write(e)
		case <-l.ctx.Done():
			// Drain what is already queued.
			for {
				select {
				case e := <-l.queue:
					l.write(e)
				default:
					return
				}
			}
		}
	}
}

func (l *fileLogger) write(e Event) {
	line, err := json.Marshal(e)
	if err != nil {
		l.logger.Error("Failed to encode transcript event", "error", err)
		return
	}
	line = append(line, '\n')

	// Events without a session (a start that never issued one) only go
	// to the combined file.
	if e.SessionID != "" {
		path := filepath.Join(l.cfg.Dir, safeName(e.SessionID)+".ndjson")
		if err := appendFile(path, line); err != nil {
			l.logger.Error("Failed to write transcript log", "path", path, "error", err)
		}
	}
	if l.cfg.GlobalEnabled {
		if err := appendFile(l.cfg.GlobalPath, line); err != nil {
			l.logger.Error("Failed to write global transcript log", "path", l.cfg.GlobalPath, "error", err)
		}
	}
}

// Close flushes queued events and stops the writer.
func (l *fileLogger) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		l.wg.Wait()
	})
	return nil
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var (
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	spacePattern    = regexp.MustCompile(`[ \t]+`)
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// cleanForReadability strips escape sequences and control characters and
// collapses runs of blanks.
func cleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func safeName(id string) string {
	id = unsafeNameChars.ReplaceAllString(id, "_")
	if id == "" {
		return "unknown"
	}
	return id
}
