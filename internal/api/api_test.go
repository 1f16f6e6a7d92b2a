package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/PlatformAI/internal/genai"
	"github.com/BTreeMap/PlatformAI/internal/models"
	"github.com/BTreeMap/PlatformAI/internal/relay"
	"github.com/BTreeMap/PlatformAI/internal/schema"
	"github.com/BTreeMap/PlatformAI/internal/store"
)

// stubGenerator answers every backend call with output and err.
type stubGenerator struct {
	output string
	err    error
}

func (g stubGenerator) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.output, g.err
}

// stubLister implements ModelLister.
type stubLister struct {
	names []string
	err   error
}

func (l stubLister) ListModels(ctx context.Context) ([]string, error) { return l.names, l.err }

func newTestServer(gen relay.Generator, opts ...Option) (*Server, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	svc := relay.NewService(gen, relay.WithReceipts(st))
	return NewServer(svc, stubLister{names: []string{"gemma3:4b"}}, st, opts...), st
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeChat(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func TestChatHandler_Success(t *testing.T) {
	s, st := newTestServer(stubGenerator{output: `{"mode":"QNA","data":{"answer":"Automations run rules for you."}}`})

	rr := doRequest(t, s.Handler(), http.MethodPost, "/api/chat", `{"message":"What is an automation?"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))

	body := decodeChat(t, rr)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "QNA", data["mode"])
	inner := data["data"].(map[string]interface{})
	assert.Equal(t, "Automations run rules for you.", inner["answer"])
	assert.Equal(t, []interface{}{}, inner["related_features"])

	receipts, err := st.GetReceipts(0)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, rr.Header().Get(RequestIDHeader), receipts[0].ID)
}

func TestChatHandler_InvalidBody(t *testing.T) {
	s, st := newTestServer(stubGenerator{output: "{}"})
	for _, body := range []string{`not json`, `{}`, `{"message":42}`, `{"message":null}`, `{"message":""}`} {
		rr := doRequest(t, s.Handler(), http.MethodPost, "/api/chat", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		got := decodeChat(t, rr)
		assert.Equal(t, false, got["success"])
		assert.Equal(t, MsgInvalidMessageField, got["error"], body)
	}
	receipts, _ := st.GetReceipts(0)
	assert.Empty(t, receipts, "rejected bodies never reach the relay")
}

func TestChatHandler_BlankMessage(t *testing.T) {
	s, _ := newTestServer(stubGenerator{output: "{}"})
	rr := doRequest(t, s.Handler(), http.MethodPost, "/api/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, MsgEmptyMessage, decodeChat(t, rr)["error"])
}

func TestChatHandler_BackendFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
		hint   string
	}{
		{"unavailable", fmt.Errorf("%w: connection refused", genai.ErrBackendUnavailable), http.StatusServiceUnavailable, MsgBackendUnavailable, HintBackendUnavailable},
		{"timeout", fmt.Errorf("%w after 60s", genai.ErrBackendTimeout), http.StatusGatewayTimeout, MsgBackendTimeout, HintBackendTimeout},
		{"other", errors.New("backend returned status 500"), http.StatusInternalServerError, "backend returned status 500", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(stubGenerator{err: tt.err})
			rr := doRequest(t, s.Handler(), http.MethodPost, "/api/chat", `{"message":"What is an automation?"}`)
			assert.Equal(t, tt.status, rr.Code)
			body := decodeChat(t, rr)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.msg, body["error"])
			if tt.hint == "" {
				assert.NotContains(t, body, "hint")
			} else {
				assert.Equal(t, tt.hint, body["hint"])
			}
			assert.NotContains(t, body, "raw")
		})
	}
}

func TestChatHandler_UnrecoverableTruncatesRaw(t *testing.T) {
	prose := strings.Repeat("w", 600)
	s, _ := newTestServer(stubGenerator{output: prose})

	rr := doRequest(t, s.Handler(), http.MethodPost, "/api/chat", `{"message":"Create onboarding workflow"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeChat(t, rr)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, schema.MsgInvalidJSON, body["error"])
	assert.Equal(t, prose[:MaxRawLength], body["raw"])
	assert.Equal(t, HintInvalidResponse, body["hint"])
}

func TestChatHandler_UnrecoverableKeepsObjectRaw(t *testing.T) {
	s, _ := newTestServer(stubGenerator{output: `{"mode":"WORKFLOW","data":{"nodes":[{"id":1,"type":"trigger"}]}}`})

	rr := doRequest(t, s.Handler(), http.MethodPost, "/api/chat", `{"message":"build an automation"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeChat(t, rr)
	raw, ok := body["raw"].(map[string]interface{})
	require.True(t, ok, "object diagnostics are returned as JSON objects")
	assert.Equal(t, "WORKFLOW", raw["mode"])
}

func TestChatHandler_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(stubGenerator{})
	rr := doRequest(t, s.Handler(), http.MethodGet, "/api/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))
}

func TestTruncateRaw(t *testing.T) {
	assert.Equal(t, "short", truncateRaw("short"))
	assert.Equal(t, strings.Repeat("é", MaxRawLength), truncateRaw(strings.Repeat("é", MaxRawLength+1)))
	obj := map[string]any{"mode": "x"}
	assert.Equal(t, obj, truncateRaw(obj))
	assert.Nil(t, truncateRaw(nil))
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(stubGenerator{})
	rr := doRequest(t, s.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Ollama.Connected)
	assert.Equal(t, []string{"gemma3:4b"}, health.Ollama.Models)

	down := NewServer(nil, stubLister{err: genai.ErrBackendUnavailable}, nil)
	rr = doRequest(t, down.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.False(t, health.Ollama.Connected)
	assert.Equal(t, genai.ErrBackendUnavailable.Error(), health.Ollama.Error)
}

func TestRootHandler(t *testing.T) {
	s, _ := newTestServer(stubGenerator{}, WithVersion("2.1.0"))
	rr := doRequest(t, s.Handler(), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var info models.ServiceInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, ServiceName, info.Name)
	assert.Equal(t, "2.1.0", info.Version)
	assert.Equal(t, "POST /api/chat", info.Endpoints["chat"])
	assert.Equal(t, "GET /health", info.Endpoints["health"])
	assert.NotContains(t, info.Endpoints, "whatsapp")

	rr = doRequest(t, s.Handler(), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSchemaHandler(t *testing.T) {
	s, _ := newTestServer(stubGenerator{})
	rr := doRequest(t, s.Handler(), http.MethodGet, "/api/schema", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/schema+json", rr.Header().Get("Content-Type"))
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Contains(t, doc, "$schema")
}

func TestReceiptsHandler(t *testing.T) {
	s, _ := newTestServer(stubGenerator{output: "plain answer"})
	for i := 0; i < 3; i++ {
		doRequest(t, s.Handler(), http.MethodPost, "/api/chat", `{"message":"how?"}`)
	}

	rr := doRequest(t, s.Handler(), http.MethodGet, "/api/receipts?limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Receipts []models.Receipt `json:"receipts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Receipts, 2)
	assert.Equal(t, models.OutcomeOK, body.Receipts[0].Outcome)
	assert.Equal(t, models.ModeQNA, body.Receipts[0].Mode)
	assert.Equal(t, "plain-text", body.Receipts[0].Attempt)
	assert.NotContains(t, rr.Body.String(), "plain answer", "receipts never carry message text")

	for _, bad := range []string{"0", "-1", "many"} {
		rr = doRequest(t, s.Handler(), http.MethodGet, "/api/receipts?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(stubGenerator{})
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	restricted, _ := newTestServer(stubGenerator{}, WithCORSOrigins([]string{"https://app.example.com"}))
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr = httptest.NewRecorder()
	restricted.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	restricted.Handler().ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

// panicRelay fails every exchange with a panic.
type panicRelay struct{}

func (panicRelay) Handle(ctx context.Context, message string, channel models.Channel) relay.Result {
	panic("relay exploded")
}

func TestRecoverMiddleware(t *testing.T) {
	s := NewServer(panicRelay{}, nil, nil)
	rr := doRequest(t, s.Handler(), http.MethodPost, "/api/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, MsgInternalError, decodeChat(t, rr)["error"])
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s, _ := newTestServer(stubGenerator{}, WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_ListenError(t *testing.T) {
	s, _ := newTestServer(stubGenerator{}, WithAddr("not-an-address"))
	assert.Error(t, s.Run(context.Background()))
}
