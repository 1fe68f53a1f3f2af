package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/symptom-intake/internal/domain"
	"github.com/ashureev/symptom-intake/internal/identity"
	"github.com/ashureev/symptom-intake/internal/interview"
	"github.com/ashureev/symptom-intake/internal/reasoning"
)

// Interviewer is the session controller as seen by the transport layer.
type Interviewer interface {
	StartInterview(ctx context.Context, sessionID, symptom string) (interview.StartResult, error)
	ContinueInterview(ctx context.Context, sessionID, response string) (domain.TurnResult, error)
	Snapshot(ctx context.Context, sessionID string) (interview.Snapshot, error)
	GetReport(ctx context.Context, sessionID string) (domain.StructuredReport, error)
	AbandonInterview(ctx context.Context, sessionID string) error
}

// InterviewConfig tunes the interview handlers.
type InterviewConfig struct {
	SessionTTL    time.Duration
	MaxBodyBytes  int64
	IsDevelopment bool
}

// InterviewHandler serves the interview endpoints.
type InterviewHandler struct {
	svc    Interviewer
	schema *reasoning.Schema
	cfg    InterviewConfig
}

// NewInterviewHandler creates an interview handler.
func NewInterviewHandler(svc Interviewer, schema *reasoning.Schema, cfg InterviewConfig) *InterviewHandler {
	if schema == nil {
		schema = reasoning.DefaultSchema()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	return &InterviewHandler{svc: svc, schema: schema, cfg: cfg}
}

// RegisterRoutes registers interview routes.
func (h *InterviewHandler) RegisterRoutes(r chi.Router) {
	r.Post("/start_interview", h.Start)
	r.Post("/continue_interview", h.Continue)
	r.Get("/transcript", h.Transcript)
	r.Get("/report", h.Report)
	r.Get("/get_report", h.Report)
	r.Post("/reset_interview", h.Reset)
	r.Get("/api/report_schema", h.ReportSchema)
}

type startRequest struct {
	InitialSymptom string `json:"initial_symptom"`
	SessionID      string `json:"session_id,omitempty"`
}

type startResponse struct {
	SessionID    string `json:"session_id"`
	NextQuestion string `json:"next_question"`
}

type continueRequest struct {
	UserResponse string `json:"user_response"`
	SessionID    string `json:"session_id,omitempty"`
}

type turnResponse struct {
	IsComplete       bool                     `json:"is_complete"`
	NextQuestion     string                   `json:"next_question,omitempty"`
	History          []domain.Message         `json:"history,omitempty"`
	StructuredReport *domain.StructuredReport `json:"structured_report,omitempty"`
}

type transcriptResponse struct {
	SessionID string           `json:"session_id,omitempty"`
	Phase     domain.Phase     `json:"phase"`
	History   []domain.Message `json:"history"`
}

// sessionID prefers the token carried by the request over one in the body.
func sessionID(r *http.Request, fromBody string) string {
	if sid := identity.SessionIDFromContext(r.Context()); sid != "" {
		return sid
	}
	return identity.SanitizeSessionID(fromBody)
}

// Start begins an interview from the initial symptom.
func (h *InterviewHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := h.svc.StartInterview(r.Context(), sessionID(r, req.SessionID), req.InitialSymptom)
	if err != nil {
		writeServiceError(w, r, "start", err, msgAlreadyActive)
		return
	}

	identity.SetSessionCookie(w, res.SessionID, h.cfg.SessionTTL, h.cfg.IsDevelopment)
	w.Header().Set(identity.SessionHeaderName, res.SessionID)
	JSON(w, http.StatusOK, startResponse{SessionID: res.SessionID, NextQuestion: res.Question})
}

// Continue submits the user's response to the current question.
func (h *InterviewHandler) Continue(w http.ResponseWriter, r *http.Request) {
	var req continueRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	out, err := h.svc.ContinueInterview(r.Context(), sessionID(r, req.SessionID), req.UserResponse)
	if err != nil {
		writeServiceError(w, r, "continue", err, msgNotActive)
		return
	}
	JSON(w, http.StatusOK, toTurnResponse(out))
}

func toTurnResponse(out domain.TurnResult) turnResponse {
	switch v := out.(type) {
	case domain.Completed:
		report := v.Report
		return turnResponse{IsComplete: true, History: v.History, StructuredReport: &report}
	case domain.NextQuestion:
		return turnResponse{NextQuestion: v.Question}
	default:
		return turnResponse{}
	}
}

// Transcript returns the session's phase and message history.
func (h *InterviewHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), identity.SessionIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, "transcript", err, msgNotActive)
		return
	}
	JSON(w, http.StatusOK, transcriptResponse{
		SessionID: sessionIDIfStarted(snap),
		Phase:     snap.Phase,
		History:   snap.Transcript,
	})
}

func sessionIDIfStarted(snap interview.Snapshot) string {
	if snap.Phase == domain.PhaseNotStarted {
		return ""
	}
	return snap.SessionID
}

// Report returns the structured report of a completed interview.
func (h *InterviewHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.GetReport(r.Context(), identity.SessionIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, "report", err, msgNotComplete)
		return
	}
	JSON(w, http.StatusOK, report)
}

// Reset abandons the current interview and clears the session cookie.
func (h *InterviewHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.AbandonInterview(r.Context(), identity.SessionIDFromContext(r.Context())); err != nil {
		writeServiceError(w, r, "reset", err, msgNotActive)
		return
	}
	identity.ClearSessionCookie(w, h.cfg.IsDevelopment)
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ReportSchema documents the report fields for callers.
func (h *InterviewHandler) ReportSchema(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"title":      h.schema.Title,
		"disclaimer": h.schema.Disclaimer,
		"fields":     h.schema.Fields,
	})
}
