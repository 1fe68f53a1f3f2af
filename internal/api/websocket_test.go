package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/symptom-intake/internal/identity"
	"github.com/ashureev/symptom-intake/internal/interview"
	"github.com/ashureev/symptom-intake/internal/reasoning"
	"github.com/ashureev/symptom-intake/internal/store"
)

func dialInterview(t *testing.T, finishAt int) (*websocket.Conn, context.Context) {
	t.Helper()
	svc := interview.NewService(store.NewMemory(), &stubPolicy{finishAt: finishAt}, reasoning.NewScripted(nil), interview.Config{})
	srv := httptest.NewServer(identity.Middleware(NewWebSocketHandler(svc, "", true, 0)))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, msg wsMessage) wsReply {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))

	_, raw, err := conn.Read(ctx)
	require.NoError(t, err)
	var reply wsReply
	require.NoError(t, json.Unmarshal(raw, &reply))
	return reply
}

func TestWebSocketInterview(t *testing.T) {
	conn, ctx := dialInterview(t, 2)

	reply := roundTrip(t, ctx, conn, wsMessage{Type: "ping"})
	assert.Equal(t, "pong", reply.Type)

	reply = roundTrip(t, ctx, conn, wsMessage{Type: "continue", Content: "hello"})
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, http.StatusConflict, reply.Status)

	reply = roundTrip(t, ctx, conn, wsMessage{Type: "start", Content: "headache"})
	require.Equal(t, "question", reply.Type)
	assert.NotEmpty(t, reply.SessionID)
	assert.Equal(t, "Question 1?", reply.NextQuestion)

	reply = roundTrip(t, ctx, conn, wsMessage{Type: "continue", Content: " "})
	assert.Equal(t, http.StatusBadRequest, reply.Status)

	reply = roundTrip(t, ctx, conn, wsMessage{Type: "continue", Content: "two days"})
	require.Equal(t, "complete", reply.Type)
	require.NotNil(t, reply.StructuredReport)
	assert.Len(t, reply.History, 4)

	reply = roundTrip(t, ctx, conn, wsMessage{Type: "transcript"})
	assert.Equal(t, "transcript", reply.Type)
	assert.NotNil(t, reply.StructuredReport)

	reply = roundTrip(t, ctx, conn, wsMessage{Type: "reset"})
	assert.Equal(t, "reset", reply.Type)

	reply = roundTrip(t, ctx, conn, wsMessage{Type: "start", Content: "cough"})
	assert.Equal(t, "question", reply.Type)
}

func TestWebSocketRejectsBadFrames(t *testing.T) {
	conn, ctx := dialInterview(t, 2)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	_, raw, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(raw), msgInvalidBody)

	reply := roundTrip(t, ctx, conn, wsMessage{Type: "dance"})
	assert.Equal(t, http.StatusBadRequest, reply.Status)
}

func TestWebSocketOriginCheck(t *testing.T) {
	h := NewWebSocketHandler(nil, "https://intake.example", false, 0)

	r := httptest.NewRequest(http.MethodGet, "/ws/interview", nil)
	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.checkOrigin(r))

	r.Header.Set("Origin", "https://intake.example")
	assert.True(t, h.checkOrigin(r))
}
