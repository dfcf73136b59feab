package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/brdforge/internal/logging"
	"github.com/fyrsmithlabs/brdforge/internal/model"
	"github.com/fyrsmithlabs/brdforge/internal/signal"
	"github.com/fyrsmithlabs/brdforge/internal/store"
	"github.com/fyrsmithlabs/brdforge/internal/synthesis"
	"github.com/fyrsmithlabs/brdforge/internal/validate"
)

// keywordClassifier labels fragments by keyword and stores them.
type keywordClassifier struct {
	store store.Store
	err   error
}

func (k *keywordClassifier) Classify(ctx context.Context, sessionID string, fragments []signal.RawFragment) ([]signal.ClassifiedItem, error) {
	if k.err != nil {
		return nil, k.err
	}
	items := make([]signal.ClassifiedItem, len(fragments))
	for i, f := range fragments {
		r := signal.Result{Label: signal.LabelNoise, Confidence: 0.9}
		switch text := strings.ToLower(f.Text()); {
		case strings.Contains(text, "must"):
			r = signal.Result{Label: signal.LabelRequirement, Confidence: 0.95}
		case strings.Contains(text, "decided"):
			r = signal.Result{Label: signal.LabelDecision, Confidence: 0.8, FlaggedForReview: true}
		}
		items[i] = signal.NewClassifiedItem(uuid.NewString(), sessionID, f, r, time.Now().Add(time.Duration(i)*time.Millisecond))
	}
	return items, k.store.Store(ctx, items)
}

type testEnv struct {
	server     *Server
	store      *store.MemoryStore
	classifier *keywordClassifier
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	client := model.ClientFunc(func(context.Context, []model.Message, bool) (string, error) {
		return "Generated section.", nil
	})
	classifier := &keywordClassifier{store: st}
	server, err := NewServer(Deps{
		Store:       st,
		Classifier:  classifier,
		Synthesizer: synthesis.NewOrchestrator(st, client, synthesis.DefaultConfig()),
		Validator:   validate.NewValidator(st, nil, validate.WithGates(validate.NewGapGate())),
	}, logging.Nop(), nil)
	require.NoError(t, err)
	return &testEnv{server: server, store: st, classifier: classifier}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) seed(t *testing.T, session string) FragmentsResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/sessions/"+session+"/fragments", FragmentsRequest{
		Fragments: []signal.RawFragment{
			{SourceRef: "mail-1", Speaker: "alice", CleanedText: "The export must support CSV."},
			{SourceRef: "mail-2", Speaker: "bob", CleanedText: "We decided on Postgres."},
			{SourceRef: "chat-1", Speaker: "carol", CleanedText: "lunch anyone?"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[FragmentsResponse](t, rec)
}

func TestNewServer(t *testing.T) {
	st := store.NewMemoryStore()
	deps := Deps{
		Store:       st,
		Classifier:  &keywordClassifier{store: st},
		Synthesizer: synthesis.NewOrchestrator(st, nil, synthesis.DefaultConfig()),
		Validator:   validate.NewValidator(st, nil),
	}

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(deps, logging.Nop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9191, server.config.Port)
	})

	t.Run("requires a logger", func(t *testing.T) {
		_, err := NewServer(deps, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("requires every dependency", func(t *testing.T) {
		missing := deps
		missing.Validator = nil
		_, err := NewServer(missing, logging.Nop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validator cannot be nil")
	})
}

func TestHandleHealthAndMetrics(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandleCreateSession(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	_, err := uuid.Parse(decode[SessionResponse](t, rec).SessionID)
	assert.NoError(t, err)
}

func TestHandleFragments(t *testing.T) {
	env := setupTestServer(t)

	resp := env.seed(t, "s1")
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Signals)
	assert.Equal(t, 1, resp.Noise)
	assert.Equal(t, 1, resp.Flagged)
	assert.Equal(t, map[string]int{"requirement": 1, "decision": 1, "noise": 1}, resp.Labels)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"no fragments", FragmentsRequest{}, "fragments field is required"},
		{"empty fragment", FragmentsRequest{Fragments: []signal.RawFragment{{CleanedText: "fine text"}, {RawText: "  "}}}, "fragment 1"},
		{"malformed body", "not an object", "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/sessions/s1/fragments", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestHandleFragments_InternalError(t *testing.T) {
	env := setupTestServer(t)
	env.classifier.err = errors.New("connection refused")

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/s1/fragments", FragmentsRequest{
		Fragments: []signal.RawFragment{{CleanedText: "The export must support CSV."}},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal error")
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestHandlersLogWithRequestLogger(t *testing.T) {
	logger := logging.NewTestLogger()
	st := store.NewMemoryStore()
	classifier := &keywordClassifier{store: st, err: errors.New("connection refused")}
	server, err := NewServer(Deps{
		Store:       st,
		Classifier:  classifier,
		Synthesizer: synthesis.NewOrchestrator(st, model.ClientFunc(func(context.Context, []model.Message, bool) (string, error) {
			return "", nil
		}), synthesis.DefaultConfig()),
		Validator: validate.NewValidator(st, nil, validate.WithGates(validate.NewGapGate())),
	}, logger.Logger, nil)
	require.NoError(t, err)
	env := &testEnv{server: server, store: st, classifier: classifier}

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/s1/fragments", FragmentsRequest{
		Fragments: []signal.RawFragment{{CleanedText: "The export must support CSV."}},
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	requestID := rec.Header().Get(echo.HeaderXRequestID)
	require.NotEmpty(t, requestID)

	failed := logger.FilterMessage("request failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, requestID, fields["request_id"])
	assert.Equal(t, "s1", fields["session.id"])
	assert.Contains(t, fields["error"], "connection refused")

	access := logger.FilterMessage("http request").All()
	require.Len(t, access, 1)
	assert.Equal(t, requestID, access[0].ContextMap()["request_id"])
}

func TestHandleItemsAndRestore(t *testing.T) {
	env := setupTestServer(t)
	env.seed(t, "s1")

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/s1/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	signals := decode[ItemsResponse](t, rec)
	assert.Equal(t, "signal", signals.Status)
	assert.Len(t, signals.Items, 2)

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/s1/items?status=noise", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	noise := decode[ItemsResponse](t, rec)
	require.Len(t, noise.Items, 1)
	noiseID := noise.Items[0].ID

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/s1/items?status=all", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/other/items/"+noiseID+"/restore", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/s1/items/missing/restore", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/s1/items/"+noiseID+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	restored := decode[signal.ClassifiedItem](t, rec)
	assert.True(t, restored.ManuallyRestored)
	assert.False(t, restored.Suppressed)

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/s1/items?status=noise", nil)
	assert.Empty(t, decode[ItemsResponse](t, rec).Items)

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/empty/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

func TestHandleDocumentLifecycle(t *testing.T) {
	env := setupTestServer(t)
	env.seed(t, "s1")

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/s1/brd", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/s1/brd/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	generated := decode[GenerateResponse](t, rec)
	assert.NotEmpty(t, generated.SnapshotID)
	// No timeline references were classified.
	require.Len(t, generated.Flags, 1)
	assert.Equal(t, synthesis.SectionTimeline, generated.Flags[0].SectionName)
	assert.Equal(t, signal.SeverityMedium, generated.Flags[0].Severity)

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/s1/brd", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[DocumentResponse](t, rec)
	require.Len(t, doc.Sections, len(synthesis.AllSections))
	for i, name := range synthesis.AllSections {
		assert.Equal(t, name, doc.Sections[i].Name)
		assert.Equal(t, 1, doc.Sections[i].Version)
		assert.Equal(t, generated.SnapshotID, doc.Sections[i].SnapshotID)
		assert.False(t, doc.Sections[i].Locked)
	}
	assert.Len(t, doc.Flags, 1)

	rec = env.do(t, http.MethodPut, "/api/v1/sessions/s1/brd/sections/decisions", EditSectionRequest{Content: "Postgres, approved by the CTO."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[SectionView](t, rec)
	assert.Equal(t, 2, edited.Version)
	assert.True(t, edited.Locked)
	assert.Equal(t, generated.SnapshotID, edited.SnapshotID)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/s1/brd/sections/decisions/regenerate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/s1/brd/sections/timeline/regenerate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[SectionView](t, rec).Version)

	rec = env.do(t, http.MethodPost, "/api/v1/sessions/s1/brd/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[FlagsResponse](t, rec).Flags, 1)
}

func TestHandleSectionErrors(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		target string
		body   any
		code   int
	}{
		{"edit unknown section", http.MethodPut, "/api/v1/sessions/s1/brd/sections/appendix", EditSectionRequest{Content: "x"}, http.StatusBadRequest},
		{"edit empty content", http.MethodPut, "/api/v1/sessions/s1/brd/sections/timeline", EditSectionRequest{Content: " "}, http.StatusBadRequest},
		{"regenerate unknown section", http.MethodPost, "/api/v1/sessions/s1/brd/sections/appendix/regenerate", nil, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/v1/nothing", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}
