package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnsl/enrollbot/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.DirectoryConfig{
		BaseURL: srv.URL,
		SheetID: "sheet-1",
		Range:   "Groups!A2:C",
		APIKey:  "key",
		Timeout: time.Second,
	})
}

func TestGroupByCodeFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v4/spreadsheets/sheet-1/values/")
		assert.Equal(t, "key", r.URL.Query().Get("key"))
		w.Write([]byte(`{"values":[["11112222","Maths Group","https://chat.example/abc"],["33334444","Science Group","https://chat.example/def"]]}`))
	})

	rec, err := c.GroupByCode(context.Background(), "33334444")
	require.NoError(t, err)
	assert.Equal(t, "Science Group", rec.CourseName)
	assert.Equal(t, "https://chat.example/def", rec.JoinLink)
}

func TestGroupByCodeAbsent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"values":[["11112222","Maths Group","https://chat.example/abc"]]}`))
	})

	_, err := c.GroupByCode(context.Background(), "99999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGroupByCodeRemoteErrorDegrades(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.GroupByCode(context.Background(), "11112222")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGroupByCodeSkipsShortRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"values":[["11112222"],["11112222","Maths Group","https://chat.example/abc"]]}`))
	})

	rec, err := c.GroupByCode(context.Background(), "11112222")
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example/abc", rec.JoinLink)
}
