package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/symptom-intake/internal/domain"
	"github.com/ashureev/symptom-intake/internal/identity"
	"github.com/ashureev/symptom-intake/internal/interview"
	"github.com/ashureev/symptom-intake/internal/reasoning"
	"github.com/ashureev/symptom-intake/internal/store"
)

type stubPolicy struct {
	err      error
	finishAt int
}

func (p *stubPolicy) Decide(_ context.Context, transcript []domain.Message) (domain.Decision, error) {
	if p.err != nil {
		return domain.Decision{}, p.err
	}
	turns := domain.CountUserTurns(transcript)
	if turns >= p.finishAt {
		return domain.Finish(), nil
	}
	return domain.Ask(fmt.Sprintf("Question %d?", turns)), nil
}

type testServer struct {
	router http.Handler
	policy *stubPolicy
}

func newTestServer(t *testing.T, finishAt int) *testServer {
	t.Helper()
	policy := &stubPolicy{finishAt: finishAt}
	svc := interview.NewService(store.NewMemory(), policy, reasoning.NewScripted(nil), interview.Config{})

	r := chi.NewRouter()
	r.Use(identity.Middleware)
	NewInterviewHandler(svc, nil, InterviewConfig{IsDevelopment: true}).RegisterRoutes(r)
	return &testServer{router: r, policy: policy}
}

func (s *testServer) do(t *testing.T, method, path, sessionID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(identity.SessionHeaderName, sessionID)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func (s *testServer) start(t *testing.T, symptom string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/start_interview", "", map[string]string{"initial_symptom": symptom})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeBody[startResponse](t, w).SessionID
}

func TestStartInterviewEndpoint(t *testing.T) {
	s := newTestServer(t, 3)

	w := s.do(t, http.MethodPost, "/start_interview", "", map[string]string{"initial_symptom": "headache"})
	require.Equal(t, http.StatusOK, w.Code)

	res := decodeBody[startResponse](t, w)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "Question 1?", res.NextQuestion)
	assert.Equal(t, res.SessionID, w.Header().Get(identity.SessionHeaderName))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, identity.SessionCookieName, cookies[0].Name)
	assert.Equal(t, res.SessionID, cookies[0].Value)
}

func TestStartInterviewEmptySymptomIs400(t *testing.T) {
	s := newTestServer(t, 3)

	w := s.do(t, http.MethodPost, "/start_interview", "", map[string]string{"initial_symptom": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgEmptyInput, decodeBody[map[string]string](t, w)["error"])
}

func TestStartInterviewTwiceIs409(t *testing.T) {
	s := newTestServer(t, 3)
	sid := s.start(t, "headache")

	w := s.do(t, http.MethodPost, "/start_interview", sid, map[string]string{"initial_symptom": "fever"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartInterviewMalformedJSONIs400(t *testing.T) {
	s := newTestServer(t, 3)

	req := httptest.NewRequest(http.MethodPost, "/start_interview", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContinueBeforeStartIs409(t *testing.T) {
	s := newTestServer(t, 3)

	w := s.do(t, http.MethodPost, "/continue_interview", "", map[string]string{"user_response": "hello"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, msgNotActive, decodeBody[map[string]string](t, w)["error"])
}

func TestContinueEmptyResponseIs400(t *testing.T) {
	s := newTestServer(t, 3)
	sid := s.start(t, "headache")

	w := s.do(t, http.MethodPost, "/continue_interview", sid, map[string]string{"user_response": "\n\t "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFullInterviewOverHTTP(t *testing.T) {
	s := newTestServer(t, 3)
	sid := s.start(t, "headache")

	w := s.do(t, http.MethodPost, "/continue_interview", sid, map[string]string{"user_response": "two days"})
	require.Equal(t, http.StatusOK, w.Code)
	turn := decodeBody[turnResponse](t, w)
	assert.False(t, turn.IsComplete)
	assert.Equal(t, "Question 2?", turn.NextQuestion)

	w = s.do(t, http.MethodGet, "/report", sid, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Session id in the body works when no header or cookie is sent.
	w = s.do(t, http.MethodPost, "/continue_interview", "", map[string]string{"user_response": "behind my eyes", "session_id": sid})
	require.Equal(t, http.StatusOK, w.Code)
	turn = decodeBody[turnResponse](t, w)
	require.True(t, turn.IsComplete)
	require.NotNil(t, turn.StructuredReport)
	require.Len(t, turn.History, 6)
	assert.Equal(t, domain.RoleSystem, turn.History[5].Role)
	assert.Equal(t, "Symptom Interview Report for headache", turn.StructuredReport.Title)

	w = s.do(t, http.MethodGet, "/report", sid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	raw := decodeBody[map[string]interface{}](t, w)
	assert.Contains(t, raw, "report_title")
	assert.Contains(t, raw, "safety_disclaimer")
	assert.Contains(t, raw, "sections")

	w = s.do(t, http.MethodPost, "/continue_interview", sid, map[string]string{"user_response": "more"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/transcript", sid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tr := decodeBody[transcriptResponse](t, w)
	assert.Equal(t, domain.PhaseComplete, tr.Phase)
	assert.Equal(t, turn.History, tr.History)
}

func TestUpstreamFailureIs502WithoutDetail(t *testing.T) {
	s := newTestServer(t, 5)
	sid := s.start(t, "headache")

	s.policy.err = errors.New("401 invalid api key sk-secret")
	w := s.do(t, http.MethodPost, "/continue_interview", sid, map[string]string{"user_response": "two days"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-secret")

	w = s.do(t, http.MethodGet, "/transcript", sid, nil)
	tr := decodeBody[transcriptResponse](t, w)
	assert.Len(t, tr.History, 2)
}

func TestTranscriptWithoutSessionIsEmpty(t *testing.T) {
	s := newTestServer(t, 3)

	w := s.do(t, http.MethodGet, "/transcript", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"phase":"not_started","history":[]}`, w.Body.String())
}

func TestResetInterview(t *testing.T) {
	s := newTestServer(t, 3)
	sid := s.start(t, "headache")

	w := s.do(t, http.MethodPost, "/reset_interview", sid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"reset"}`, w.Body.String())

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)

	w = s.do(t, http.MethodPost, "/start_interview", sid, map[string]string{"initial_symptom": "fever"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReportSchemaEndpoint(t *testing.T) {
	s := newTestServer(t, 3)

	w := s.do(t, http.MethodGet, "/api/report_schema", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[struct {
		Title  string            `json:"title"`
		Fields []reasoning.Field `json:"fields"`
	}](t, w)
	assert.Equal(t, reasoning.DefaultSchema().Title, got.Title)
	assert.NotEmpty(t, got.Fields)
}
