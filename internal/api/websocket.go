package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/symptom-intake/internal/domain"
	"github.com/ashureev/symptom-intake/internal/identity"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketHandler runs an interview over a WebSocket. Frames on one
// connection are handled in order, so a connection never has two turns in
// flight.
type WebSocketHandler struct {
	svc           Interviewer
	allowedOrigin string
	isDev         bool
	maxFrameBytes int64
}

// NewWebSocketHandler creates a WebSocket handler.
func NewWebSocketHandler(svc Interviewer, allowedOrigin string, isDev bool, maxFrameBytes int64) *WebSocketHandler {
	if maxFrameBytes <= 0 {
		maxFrameBytes = defaultMaxRequestBodySize
	}
	return &WebSocketHandler{svc: svc, allowedOrigin: allowedOrigin, isDev: isDev, maxFrameBytes: maxFrameBytes}
}

// wsMessage is a client frame.
type wsMessage struct {
	Type      string `json:"type"` // start, continue, transcript, reset, ping
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// wsReply is a server frame.
type wsReply struct {
	Type             string                   `json:"type"` // question, complete, transcript, reset, pong, error
	SessionID        string                   `json:"session_id,omitempty"`
	NextQuestion     string                   `json:"next_question,omitempty"`
	History          []domain.Message         `json:"history,omitempty"`
	StructuredReport *domain.StructuredReport `json:"structured_report,omitempty"`
	Error            string                   `json:"error,omitempty"`
	Status           int                      `json:"status,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "interview ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()
	ws.SetReadLimit(h.maxFrameBytes)

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := h.writeReply(ctx, ws, wsReply{Type: "error", Error: msgInvalidBody, Status: http.StatusBadRequest}); err != nil {
				return
			}
			continue
		}
		if sid := identity.SanitizeSessionID(msg.SessionID); sid != "" {
			sessionID = sid
		}

		reply, next := h.dispatch(ctx, msg, sessionID)
		sessionID = next
		if err := h.writeReply(ctx, ws, reply); err != nil {
			slog.Debug("Failed to send WebSocket reply", "error", err, "session_id", sessionID)
			return
		}
	}
}

// dispatch handles one frame and returns the reply and the connection's
// session token afterwards.
func (h *WebSocketHandler) dispatch(ctx context.Context, msg wsMessage, sessionID string) (wsReply, string) {
	switch msg.Type {
	case "start":
		res, err := h.svc.StartInterview(ctx, sessionID, msg.Content)
		if err != nil {
			return errorReply("start", err, msgAlreadyActive), sessionID
		}
		return wsReply{Type: "question", SessionID: res.SessionID, NextQuestion: res.Question}, res.SessionID

	case "continue":
		out, err := h.svc.ContinueInterview(ctx, sessionID, msg.Content)
		if err != nil {
			return errorReply("continue", err, msgNotActive), sessionID
		}
		turn := toTurnResponse(out)
		if turn.IsComplete {
			return wsReply{Type: "complete", SessionID: sessionID, History: turn.History, StructuredReport: turn.StructuredReport}, sessionID
		}
		return wsReply{Type: "question", SessionID: sessionID, NextQuestion: turn.NextQuestion}, sessionID

	case "transcript":
		snap, err := h.svc.Snapshot(ctx, sessionID)
		if err != nil {
			return errorReply("transcript", err, msgNotActive), sessionID
		}
		return wsReply{Type: "transcript", SessionID: sessionIDIfStarted(snap), History: snap.Transcript, StructuredReport: snap.Report}, sessionID

	case "reset":
		if err := h.svc.AbandonInterview(ctx, sessionID); err != nil {
			return errorReply("reset", err, msgNotActive), sessionID
		}
		return wsReply{Type: "reset"}, ""

	case "ping":
		return wsReply{Type: "pong"}, sessionID

	default:
		return wsReply{Type: "error", Error: "unknown message type", Status: http.StatusBadRequest}, sessionID
	}
}

func errorReply(op string, err error, invalidStateMsg string) wsReply {
	status, msg := statusFor(err, invalidStateMsg)
	if status >= http.StatusInternalServerError {
		slog.Error("WebSocket interview request failed", "op", op, "status", status, "error", err)
	}
	return wsReply{Type: "error", Error: msg, Status: status}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) writeReply(ctx context.Context, ws *websocket.Conn, v wsReply) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
