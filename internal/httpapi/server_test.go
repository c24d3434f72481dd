package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnsl/enrollbot/internal/observability"
	"github.com/learnsl/enrollbot/internal/store"
)

type recordingEngine struct {
	from string
	body string
	err  error
}

func (r *recordingEngine) Handle(_ context.Context, from, body string) error {
	r.from = from
	r.body = body
	return r.err
}

type stubReader struct {
	entries []store.ConversationEntry
	err     error
}

func (s *stubReader) ConversationsByUser(context.Context, string) ([]store.ConversationEntry, error) {
	return s.entries, s.err
}

func postWebhook(t *testing.T, srv *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestWebhookDispatchesToEngine(t *testing.T) {
	eng := &recordingEngine{}
	srv := New(eng, &stubReader{}, nil)

	rec := postWebhook(t, srv, url.Values{
		"From": {"whatsapp:+94771234567"},
		"Body": {"12345678"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "whatsapp:+94771234567", eng.from)
	assert.Equal(t, "12345678", eng.body)
}

func TestWebhookAlwaysAcksEngineFailure(t *testing.T) {
	eng := &recordingEngine{err: errors.New("malformed sender")}
	srv := New(eng, &stubReader{}, nil)

	rec := postWebhook(t, srv, url.Values{
		"From": {"not-a-number"},
		"Body": {"hi"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookAcksMissingFields(t *testing.T) {
	eng := &recordingEngine{}
	srv := New(eng, &stubReader{}, nil)

	rec := postWebhook(t, srv, url.Values{})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, eng.from)
}

func TestConversationsEndpoint(t *testing.T) {
	reader := &stubReader{entries: []store.ConversationEntry{
		{WAID: "whatsapp:+94771234567", Direction: "in", Body: "12345678"},
		{WAID: "whatsapp:+94771234567", Direction: "out", Body: "What is your first name?"},
	}}
	srv := New(&recordingEngine{}, reader, nil)

	req := httptest.NewRequest(http.MethodGet, "/conversations/whatsapp:+94771234567", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []store.ConversationEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "in", got[0].Direction)
	assert.Equal(t, "out", got[1].Direction)
}

func TestConversationsEndpointReadFailure(t *testing.T) {
	srv := New(&recordingEngine{}, &stubReader{err: errors.New("db down")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/conversations/abc", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := observability.NewMetrics("enrollbot_httptest")
	metrics.ActiveSessions.Set(3)
	srv := New(&recordingEngine{}, &stubReader{}, metrics)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "enrollbot_httptest_active_sessions 3")
}

func TestHealthz(t *testing.T) {
	srv := New(&recordingEngine{}, &stubReader{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
