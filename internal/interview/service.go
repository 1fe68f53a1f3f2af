// Package interview implements the session controller: the state machine
// that takes an interview from not started, through active turns, to a
// single completion with a structured report.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/symptom-intake/internal/domain"
	"github.com/ashureev/symptom-intake/internal/metrics"
	"github.com/ashureev/symptom-intake/internal/store"
	"github.com/ashureev/symptom-intake/internal/transcriptlog"
)

// DefaultClosingMessage is appended as a System message on completion.
const DefaultClosingMessage = "The interview is complete. Thank you for your patience. I have generated a structured report for review. Please find the JSON report below."

// Policy decides whether to ask another question or finish.
type Policy interface {
	Decide(ctx context.Context, transcript []domain.Message) (domain.Decision, error)
}

// Compiler turns a finished transcript into a report.
type Compiler interface {
	Compile(ctx context.Context, transcript []domain.Message) (domain.StructuredReport, error)
}

// Recorder receives operation outcomes. *metrics.Recorder implements it.
type Recorder interface {
	InterviewStarted()
	Turn(operation, outcome string)
	TurnStarted()
	TurnFinished()
}

// Config tunes the Service. Zero values are usable.
type Config struct {
	// MaxTurns forces completion once a transcript holds this many user
	// messages, the initial symptom included. Zero disables the cap.
	MaxTurns       int
	SessionTTL     time.Duration
	ClosingMessage string
	// Fallback compiles the report for a forced completion when the
	// primary compiler fails.
	Fallback Compiler
	Log      transcriptlog.Logger
	Metrics  Recorder
	Now      func() time.Time
	NewID    func() string
}

// StartResult is returned by StartInterview.
type StartResult struct {
	SessionID string
	Question  string
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	SessionID  string
	Phase      domain.Phase
	Transcript []domain.Message
	Report     *domain.StructuredReport
	ExpiresAt  time.Time
}

// Service is the session controller.
type Service struct {
	store    store.SessionStore
	policy   Policy
	compiler Compiler
	cfg      Config
	locks    sync.Map // session id -> *sync.Mutex
}

// NewService wires a controller over a session store and the reasoning
// collaborators.
func NewService(st store.SessionStore, policy Policy, compiler Compiler, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.ClosingMessage == "" {
		cfg.ClosingMessage = DefaultClosingMessage
	}
	if cfg.Log == nil {
		cfg.Log = transcriptlog.Nop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Service{store: st, policy: policy, compiler: compiler, cfg: cfg}
}

// StartInterview begins a new interview. sessionID is the caller's current
// token, if any: a token naming a live session means the interview was
// already started. A fresh token is always issued.
func (s *Service) StartInterview(ctx context.Context, sessionID, symptom string) (StartResult, error) {
	s.cfg.Metrics.TurnStarted()
	defer s.cfg.Metrics.TurnFinished()

	if sessionID != "" {
		_, err := s.store.Get(ctx, sessionID)
		switch {
		case err == nil:
			s.cfg.Metrics.Turn("start", metrics.OutcomeState)
			return StartResult{}, fmt.Errorf("%w: interview already started", domain.ErrInvalidState)
		case !errors.Is(err, domain.ErrSessionNotFound):
			s.cfg.Metrics.Turn("start", metrics.OutcomeInternal)
			return StartResult{}, fmt.Errorf("load session: %w", err)
		}
	}

	symptom = strings.TrimSpace(symptom)
	if symptom == "" {
		s.cfg.Metrics.Turn("start", metrics.OutcomeEmpty)
		return StartResult{}, domain.ErrEmptyInput
	}

	id := s.cfg.NewID()
	proposed := []domain.Message{{Role: domain.RoleUser, Text: symptom}}

	decision, err := s.policy.Decide(ctx, proposed)
	if err == nil && (decision.Complete || strings.TrimSpace(decision.Question) == "") {
		err = errors.New("policy did not produce an opening question")
	}
	if err != nil {
		s.reasoningFailed("", "start", 1, err)
		return StartResult{}, fmt.Errorf("%w: %v", domain.ErrUpstreamReasoning, err)
	}

	question := strings.TrimSpace(decision.Question)
	now := s.cfg.Now()
	session := &domain.Session{
		ID:         id,
		Phase:      domain.PhaseActive,
		Transcript: append(proposed, domain.Message{Role: domain.RoleAgent, Text: question}),
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
	}
	if err := s.store.Create(ctx, session); err != nil {
		s.cfg.Metrics.Turn("start", metrics.OutcomeInternal)
		return StartResult{}, fmt.Errorf("create session: %w", err)
	}

	s.cfg.Metrics.InterviewStarted()
	s.cfg.Metrics.Turn("start", metrics.OutcomeQuestion)
	s.logTurn(id, 1, symptom, question)
	slog.Info("Interview started", "session_id", id)

	return StartResult{SessionID: id, Question: question}, nil
}

// ContinueInterview records a user response and either returns the next
// question or completes the interview. Nothing is stored unless the
// reasoning calls for the turn succeed.
func (s *Service) ContinueInterview(ctx context.Context, sessionID, response string) (domain.TurnResult, error) {
	s.cfg.Metrics.TurnStarted()
	defer s.cfg.Metrics.TurnFinished()

	unlock, ok := s.tryLock(sessionID)
	if !ok {
		slog.Warn("Interview turn already in progress", "session_id", sessionID)
		s.cfg.Metrics.Turn("continue", metrics.OutcomeBusy)
		return nil, domain.ErrSessionBusy
	}
	defer unlock()

	current, err := s.loadActive(ctx, sessionID)
	if err != nil {
		s.cfg.Metrics.Turn("continue", outcomeFor(err))
		return nil, err
	}

	response = strings.TrimSpace(response)
	if response == "" {
		s.cfg.Metrics.Turn("continue", metrics.OutcomeEmpty)
		return nil, domain.ErrEmptyInput
	}

	proposed := append(domain.CloneTranscript(current.Transcript), domain.Message{Role: domain.RoleUser, Text: response})
	turn := domain.CountUserTurns(proposed)
	forced := s.cfg.MaxTurns > 0 && turn >= s.cfg.MaxTurns

	if !forced {
		decision, err := s.policy.Decide(ctx, proposed)
		if err == nil && !decision.Complete && strings.TrimSpace(decision.Question) == "" {
			err = errors.New("policy continued without a question")
		}
		if err != nil {
			s.reasoningFailed(sessionID, "continue", turn, err)
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamReasoning, err)
		}

		if !decision.Complete {
			question := strings.TrimSpace(decision.Question)
			next := current.Clone()
			next.Transcript = append(proposed, domain.Message{Role: domain.RoleAgent, Text: question})
			if err := s.commit(ctx, next, current.Version); err != nil {
				s.cfg.Metrics.Turn("continue", outcomeFor(err))
				return nil, err
			}
			s.cfg.Metrics.Turn("continue", metrics.OutcomeQuestion)
			s.logTurn(sessionID, turn, response, question)
			return domain.NextQuestion{Question: question}, nil
		}
	}

	final := append(proposed, domain.Message{Role: domain.RoleSystem, Text: s.cfg.ClosingMessage})
	report, err := s.compile(ctx, final, forced)
	if err != nil {
		s.reasoningFailed(sessionID, "compile", turn, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamReasoning, err)
	}

	next := current.Clone()
	next.Phase = domain.PhaseComplete
	next.Transcript = final
	next.Report = &report
	if err := s.commit(ctx, next, current.Version); err != nil {
		s.cfg.Metrics.Turn("continue", outcomeFor(err))
		return nil, err
	}

	outcome := metrics.OutcomeComplete
	if forced {
		outcome = metrics.OutcomeForced
	}
	s.cfg.Metrics.Turn("continue", outcome)
	s.cfg.Log.Log(transcriptlog.Event{SessionID: sessionID, EventType: transcriptlog.EventUserMessage, Role: string(domain.RoleUser), Turn: turn, Content: response})
	s.cfg.Log.Log(transcriptlog.Event{SessionID: sessionID, EventType: transcriptlog.EventCompleted, Role: string(domain.RoleSystem), Turn: turn, Content: s.cfg.ClosingMessage, Forced: forced})
	slog.Info("Interview completed", "session_id", sessionID, "user_turns", turn, "forced", forced, "partial", report.Partial)

	return domain.Completed{
		History: domain.CloneTranscript(next.Transcript),
		Report:  report.Clone(),
	}, nil
}

// GetTranscript returns the transcript in insertion order. Unknown or
// expired sessions have an empty transcript.
func (s *Service) GetTranscript(ctx context.Context, sessionID string) ([]domain.Message, error) {
	snap, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snap.Transcript, nil
}

// Snapshot returns the phase, transcript and report of a session. Unknown
// sessions report PhaseNotStarted.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	empty := Snapshot{SessionID: sessionID, Phase: domain.PhaseNotStarted, Transcript: []domain.Message{}}
	if sessionID == "" {
		return empty, nil
	}
	sess, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return empty, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load session: %w", err)
	}
	return Snapshot{
		SessionID:  sess.ID,
		Phase:      sess.Phase,
		Transcript: domain.CloneTranscript(sess.Transcript),
		Report:     sess.Report,
		ExpiresAt:  sess.ExpiresAt,
	}, nil
}

// Status returns the phase of a session.
func (s *Service) Status(ctx context.Context, sessionID string) (domain.Phase, error) {
	snap, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return snap.Phase, nil
}

// GetReport returns the report of a completed interview. It never
// regenerates the report.
func (s *Service) GetReport(ctx context.Context, sessionID string) (domain.StructuredReport, error) {
	snap, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		return domain.StructuredReport{}, err
	}
	if snap.Phase != domain.PhaseComplete || snap.Report == nil {
		return domain.StructuredReport{}, fmt.Errorf("%w: interview not complete", domain.ErrInvalidState)
	}
	return snap.Report.Clone(), nil
}

// AbandonInterview deletes a session so the caller can start over.
// Abandoning an unknown session is not an error.
func (s *Service) AbandonInterview(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	unlock, ok := s.tryLock(sessionID)
	if !ok {
		return domain.ErrSessionBusy
	}
	defer unlock()

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.cfg.Log.Log(transcriptlog.Event{SessionID: sessionID, EventType: transcriptlog.EventAbandoned})
	slog.Info("Interview abandoned", "session_id", sessionID)
	return nil
}

// tryLock takes the per-session turn lock without waiting.
func (s *Service) tryLock(sessionID string) (func(), bool) {
	lock, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		return nil, false
	}
	return func() {
		mutex.Unlock()
		s.locks.Delete(sessionID)
	}, true
}

func (s *Service) loadActive(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: interview not started", domain.ErrInvalidState)
	}
	sess, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: interview not started", domain.ErrInvalidState)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !sess.Active() {
		return nil, fmt.Errorf("%w: interview is %s", domain.ErrInvalidState, sess.Phase)
	}
	return sess, nil
}

// compile runs the report compiler. A forced completion falls back to the
// fallback compiler and is always marked partial.
func (s *Service) compile(ctx context.Context, transcript []domain.Message, forced bool) (domain.StructuredReport, error) {
	report, err := s.compiler.Compile(ctx, transcript)
	if err == nil {
		report.Partial = forced
		return report, nil
	}
	if !forced || s.cfg.Fallback == nil {
		return domain.StructuredReport{}, err
	}

	slog.Warn("Report compiler failed on forced completion, using fallback", "error", err)
	report, ferr := s.cfg.Fallback.Compile(ctx, transcript)
	if ferr != nil {
		return domain.StructuredReport{}, errors.Join(err, ferr)
	}
	report.Partial = true
	return report, nil
}

// commit stores next if the session is still at expectedVersion.
func (s *Service) commit(ctx context.Context, next *domain.Session, expectedVersion int64) error {
	now := s.cfg.Now()
	next.UpdatedAt = now
	next.ExpiresAt = now.Add(s.cfg.SessionTTL)

	err := s.store.Save(ctx, next, expectedVersion)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrVersionConflict):
		return domain.ErrSessionBusy
	case errors.Is(err, domain.ErrSessionNotFound):
		return fmt.Errorf("%w: session expired", domain.ErrInvalidState)
	default:
		return fmt.Errorf("save session: %w", err)
	}
}

func (s *Service) logTurn(sessionID string, turn int, userText, question string) {
	s.cfg.Log.Log(transcriptlog.Event{SessionID: sessionID, EventType: transcriptlog.EventUserMessage, Role: string(domain.RoleUser), Turn: turn, Content: userText})
	s.cfg.Log.Log(transcriptlog.Event{SessionID: sessionID, EventType: transcriptlog.EventAgentQuestion, Role: string(domain.RoleAgent), Turn: turn, Content: question})
}

func (s *Service) reasoningFailed(sessionID, op string, turn int, err error) {
	slog.Error("Reasoning call failed", "session_id", sessionID, "operation", op, "turn", turn, "error", err)
	s.cfg.Metrics.Turn(op, metrics.OutcomeUpstream)
	s.cfg.Log.Log(transcriptlog.Event{SessionID: sessionID, EventType: transcriptlog.EventReasoningFailed, Turn: turn, Error: err.Error()})
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		return metrics.OutcomeState
	case errors.Is(err, domain.ErrSessionBusy):
		return metrics.OutcomeBusy
	case errors.Is(err, domain.ErrEmptyInput):
		return metrics.OutcomeEmpty
	default:
		return metrics.OutcomeInternal
	}
}

type nopRecorder struct{}

func (nopRecorder) InterviewStarted()   {}
func (nopRecorder) Turn(string, string) {}
func (nopRecorder) TurnStarted()        {}
func (nopRecorder) TurnFinished()       {}
