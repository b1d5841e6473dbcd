package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/refine/internal/config"
	"github.com/ternarybob/refine/pkg/archive"
	"github.com/ternarybob/refine/pkg/engine"
	"github.com/ternarybob/refine/pkg/evaluate"
	"github.com/ternarybob/refine/pkg/llm"
	"github.com/ternarybob/refine/pkg/modify"
	"github.com/ternarybob/refine/pkg/session"
)

type stubProvider struct {
	reply string
}

func (s *stubProvider) Name() string     { return "stub" }
func (s *stubProvider) Models() []string { return []string{"test-model"} }

func (s *stubProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Model: req.Model, Content: s.reply, FinishReason: "stop"}, nil
}

func newTestServer(t *testing.T) (*Server, session.Store) {
	t.Helper()

	store := session.NewMemoryStore()
	target := &stubProvider{reply: "Photosynthesis converts light into chemical energy in chloroplasts."}
	assistant := &stubProvider{reply: "Explain photosynthesis step by step"}

	factory := func() (*engine.Engine, error) {
		return engine.New(
			engine.WithStore(store),
			engine.WithTarget(target),
			engine.WithEvaluator(evaluate.NewRuleBased()),
			engine.WithModifier(modify.New(assistant, "test-model")),
		)
	}

	arch, err := archive.New(store)
	require.NoError(t, err)

	return NewServer(config.DefaultConfig(), store, arch, factory), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthAndVersion(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "refine-service", decode[VersionResponse](t, rec).Service)
}

func TestCreateAndGetSession(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/sessions", CreateSessionRequest{
		InitialPrompt: "Explain photosynthesis",
		GoalQuery:     "plant biology",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decode[SessionResponse](t, rec)
	require.NotEmpty(t, created.Session.ID)
	assert.Equal(t, "idle", created.Phase)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/sessions/"+created.Session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[SessionResponse](t, rec)
	assert.Equal(t, "Explain photosynthesis", got.Session.CurrentPrompt)
	assert.Equal(t, session.StatusActive, got.Session.Status)
}

func TestCreateSession_EmptyPrompt(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/sessions", CreateSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFullRefinementFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/sessions", CreateSessionRequest{InitialPrompt: "Explain photosynthesis"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[SessionResponse](t, rec).Session.ID

	// Process
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/process", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	processed := decode[IterationResponse](t, rec)
	assert.Equal(t, "responded", processed.Phase)
	require.NotNil(t, processed.Iteration.Evaluation)
	assert.Equal(t, evaluate.VerdictComplied, processed.Iteration.Evaluation.Verdict)

	// Processing again without acting is a phase error.
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/process", id), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Modify
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/modify", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	suggested := decode[SuggestionResponse](t, rec)
	assert.Equal(t, "suggested", suggested.Phase)
	assert.Equal(t, "Explain photosynthesis step by step", suggested.Suggestion.RevisedPrompt)

	// Accept
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/accept", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	accepted := decode[SessionResponse](t, rec)
	assert.Equal(t, "idle", accepted.Phase)
	assert.Equal(t, "Explain photosynthesis step by step", accepted.Session.CurrentPrompt)

	// End
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/end", id), EndRequest{Status: "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	ended := decode[SessionResponse](t, rec)
	assert.Equal(t, session.StatusCompleted, ended.Session.Status)

	// Further transitions are rejected.
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/process", id), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRejectAndManualEdit(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/sessions", CreateSessionRequest{InitialPrompt: "original"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[SessionResponse](t, rec).Session.ID

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/process", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/modify", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/reject", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rejected := decode[SessionResponse](t, rec)
	assert.Equal(t, "original", rejected.Session.CurrentPrompt)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/edit", id), EditRequest{Prompt: "hand written"})
	require.Equal(t, http.StatusOK, rec.Code)
	edited := decode[SessionResponse](t, rec)
	assert.Equal(t, "hand written", edited.Session.CurrentPrompt)

	// Empty edit is rejected.
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/edit", id), EditRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModifyBeforeProcess(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/sessions", CreateSessionRequest{InitialPrompt: "p"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[SessionResponse](t, rec).Session.ID

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/modify", id), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnd_InvalidStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/sessions", CreateSessionRequest{InitialPrompt: "p"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[SessionResponse](t, rec).Session.ID

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/end", id), EndRequest{Status: "active"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSessions(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	for _, p := range []string{"first prompt", "second prompt"} {
		rec := doJSON(t, h, http.MethodPost, "/sessions", CreateSessionRequest{InitialPrompt: p})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decode[[]session.Summary](t, rec)
	assert.Len(t, summaries, 2)
}

func TestSearch(t *testing.T) {
	srv, store := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/sessions", CreateSessionRequest{InitialPrompt: "Explain photosynthesis"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[SessionResponse](t, rec).Session.ID

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/sessions/%s/process", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sess, err := store.Load(id)
	require.NoError(t, err)
	require.NoError(t, srv.archive.IndexSession(context.Background(), sess))

	rec = doJSON(t, h, http.MethodPost, "/search", SearchRequest{Query: "photosynthesis"})
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[SearchResponse](t, rec)
	require.Equal(t, 1, results.Total)
	assert.Equal(t, id, results.Results[0].SessionID)

	rec = doJSON(t, h, http.MethodPost, "/search", SearchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
