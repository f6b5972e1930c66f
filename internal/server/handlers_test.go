package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kubilitics/kubilitics-copilot/internal/config"
	"github.com/kubilitics/kubilitics-copilot/internal/db"
	"github.com/kubilitics/kubilitics-copilot/internal/llm/adapter"
	"github.com/kubilitics/kubilitics-copilot/internal/llm/types"
	"github.com/kubilitics/kubilitics-copilot/internal/models"
	apitypes "github.com/kubilitics/kubilitics-copilot/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAdapter is a configured adapter returning a fixed reply.
type fakeAdapter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeAdapter) Complete(_ context.Context, req types.CompletionRequest) (*types.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.CompletionResponse{Content: f.reply, Model: req.Model}, nil
}

func (f *fakeAdapter) Provider() adapter.ProviderType { return adapter.ProviderOpenAI }
func (f *fakeAdapter) IsConfigured() bool { return true }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.LLM.APIKey = ""
	cfg.Prompt.ExemplarsPath = ""
	return cfg
}

func newTestStore(t *testing.T) db.Store {
	t.Helper()
	s, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	srv, err := NewServer(cfg, opts...)
	require.NoError(t, err)
	return srv
}

func diagnoseBody(t *testing.T, req apitypes.DiagnoseRequest) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func do(h http.Handler, method, target string, body *bytes.Reader) *httptest.ResponseRecorder {
	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, body)
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	w := do(h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health apitypes.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, Version, health.Version)
	assert.False(t, health.LLMConfigured)

	w = do(h, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(h, http.MethodGet, "/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"llm_configured":false`)
	assert.NotContains(t, w.Body.String(), "api_key")
}

func TestReadyReportsStoreFailure(t *testing.T) {
	store, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	w := do(newTestServer(t, nil, WithStore(store)).Handler(), http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDiagnoseSimulationMode(t *testing.T) {
	store := newTestStore(t)
	h := newTestServer(t, nil, WithStore(store)).Handler()

	w := do(h, http.MethodPost, "/diagnose", diagnoseBody(t, apitypes.DiagnoseRequest{
		Files:    []apitypes.FilePayload{{Filename: "main.py", Content: EncodeContent("print('Hello World')\n")}},
		ErrorLog: "NameError: name 'x' is not defined",
		Summary:  "renamed a variable",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "light", w.Header().Get(HeaderTier))
	assert.Equal(t, "fallback", w.Header().Get(HeaderPath))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var res models.DiagnosisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.Nil(t, res.FollowUp)
	require.Len(t, res.Patches, 1)
	assert.Contains(t, res.Patches[0], "Hello, AI Debugging Copilot")

	recs, err := store.ListMetrics(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 0.9, recs[0].Confidence, 1e-9)
	assert.Equal(t, recs[0].PromptTokens+recs[0].CompletionTokens, recs[0].TotalTokens)
}

func TestDiagnoseWireShape(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	w := do(h, http.MethodPost, "/api/v1/diagnose", diagnoseBody(t, apitypes.DiagnoseRequest{}))
	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	for _, key := range []string{"root_cause", "confidence", "patches", "follow_up", "agent_block"} {
		assert.Contains(t, raw, key)
	}
	assert.Len(t, raw, 5)
	assert.Equal(t, "null", string(raw["follow_up"]))
}

func TestDiagnoseModelReply(t *testing.T) {
	llm := &fakeAdapter{reply: `{"root_cause":"typo","confidence":0.4,"patches":[],"follow_up":"Which Python version?","agent_block":"checked main.py"}`}
	h := newTestServer(t, nil, WithLLMAdapter(llm)).Handler()

	w := do(h, http.MethodPost, "/diagnose", diagnoseBody(t, apitypes.DiagnoseRequest{ErrorLog: "boom"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "model", w.Header().Get(HeaderPath))
	assert.Equal(t, "gpt-4o-mini", w.Header().Get(HeaderModel))
	assert.JSONEq(t, `{"root_cause":"typo","confidence":0.4,"patches":[],"follow_up":"Which Python version?","agent_block":"checked main.py"}`, w.Body.String())
	assert.Equal(t, 1, llm.calls)
}

func TestDiagnoseModelFailureFallsBack(t *testing.T) {
	llm := &fakeAdapter{err: errors.New("connection refused")}
	h := newTestServer(t, nil, WithLLMAdapter(llm)).Handler()

	w := do(h, http.MethodPost, "/diagnose", diagnoseBody(t, apitypes.DiagnoseRequest{
		ErrorLog: "ImportError: cannot import name 'a' from partially initialized module",
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fallback", w.Header().Get(HeaderPath))
	assert.Contains(t, w.Body.String(), `"confidence":0.95`)
}

func TestDiagnoseSchemaError(t *testing.T) {
	llm := &fakeAdapter{reply: `{"root_cause":"x","confidence":"high"}`}
	h := newTestServer(t, nil, WithLLMAdapter(llm)).Handler()

	w := do(h, http.MethodPost, "/diagnose", diagnoseBody(t, apitypes.DiagnoseRequest{}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var e apitypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.True(t, strings.HasPrefix(e.Error, "invalid response from model: confidence"), e.Error)
}

func TestDiagnoseNonFiniteConfidence(t *testing.T) {
	for _, c := range []string{"NaN", "Inf", "-Inf"} {
		t.Run(c, func(t *testing.T) {
			llm := &fakeAdapter{reply: `{"root_cause":"x","confidence":"` + c + `","follow_up":"q"}`}
			h := newTestServer(t, nil, WithLLMAdapter(llm)).Handler()

			w := do(h, http.MethodPost, "/diagnose", diagnoseBody(t, apitypes.DiagnoseRequest{}))
			assert.Equal(t, http.StatusInternalServerError, w.Code)

			var e apitypes.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e), w.Body.String())
			assert.True(t, strings.HasPrefix(e.Error, "invalid response from model: confidence"), e.Error)
		})
	}
}

func TestDiagnoseTrailingGarbageFallsBack(t *testing.T) {
	llm := &fakeAdapter{reply: `{"root_cause":"x","confidence":0.9} trailing garbage`}
	h := newTestServer(t, nil, WithLLMAdapter(llm)).Handler()

	w := do(h, http.MethodPost, "/diagnose", diagnoseBody(t, apitypes.DiagnoseRequest{}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fallback", w.Header().Get(HeaderPath))
}

func TestWriteJSONUnencodable(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]float64{"confidence": math.NaN()})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to encode response"}`, w.Body.String())
}

func TestDiagnoseRejectsBadRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxBodyBytes = 256
	h := newTestServer(t, cfg).Handler()

	w := do(h, http.MethodPost, "/diagnose", bytes.NewReader([]byte(`{"files":`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, http.MethodPost, "/diagnose", diagnoseBody(t, apitypes.DiagnoseRequest{ErrorLog: strings.Repeat("x", 1024)}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(h, http.MethodGet, "/diagnose", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestDiagnoseRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimitPerMinute = 2
	h := newTestServer(t, cfg).Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(h, http.MethodPost, "/diagnose", diagnoseBody(t, apitypes.DiagnoseRequest{})).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestMetricsEndpoints(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendMetrics(ctx, &models.MetricsRecord{
			Timestamp: base.Add(time.Duration(i) * time.Minute), DurationMS: 10,
			PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6, Confidence: 0.9,
		}))
	}
	h := newTestServer(t, nil, WithStore(store)).Handler()

	w := do(h, http.MethodGet, "/api/v1/metrics?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list apitypes.MetricsListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	assert.True(t, list.Records[0].Timestamp.After(list.Records[1].Timestamp))

	w = do(h, http.MethodGet, "/api/v1/metrics?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, http.MethodGet, "/api/v1/metrics/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum models.MetricsSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.EqualValues(t, 3, sum.Count)
	assert.EqualValues(t, 18, sum.TotalTokens)
}

func TestMetricsWithoutStore(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/api/v1/metrics", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/api/v1/metrics/summary", nil).Code)
}

func TestPrometheusEndpoint(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	_ = do(h, http.MethodPost, "/diagnose", diagnoseBody(t, apitypes.DiagnoseRequest{}))

	w := do(h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "copilot_diagnoses_total")
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	r := httptest.NewRequest(http.MethodOptions, "/diagnose", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodOptions, "/diagnose", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
