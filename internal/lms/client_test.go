package lms

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

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(config.LMSConfig{
		BaseURL:       srv.URL,
		Token:         "tok",
		Timeout:       timeout,
		StudentRoleID: 5,
	})
	return c, srv
}

func TestUserByUsernameFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "core_user_get_users_by_field", r.Form.Get("wsfunction"))
		assert.Equal(t, "0771234567", r.Form.Get("values[0]"))
		assert.Equal(t, "tok", r.Form.Get("wstoken"))
		w.Write([]byte(`[{"id":42,"username":"0771234567","firstname":"Nimal","lastname":"Perera"}]`))
	}, time.Second)

	u, err := c.UserByUsername(context.Background(), "0771234567")
	require.NoError(t, err)
	assert.Equal(t, 42, u.ID)
	assert.Equal(t, "0771234567", u.Username)
}

func TestUserByUsernameAbsent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, time.Second)

	_, err := c.UserByUsername(context.Background(), "0770000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserByUsernameTimeoutDegradesToAbsent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`[{"id":1}]`))
	}, 50*time.Millisecond)

	start := time.Now()
	_, err := c.UserByUsername(context.Background(), "0771234567")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestCreateUser(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "core_user_create_users", r.Form.Get("wsfunction"))
		assert.Equal(t, "0771234567", r.Form.Get("users[0][username]"))
		assert.Equal(t, "0771234567", r.Form.Get("users[0][password]"))
		assert.Equal(t, "Mobile", r.Form.Get("users[0][customfields][0][type]"))
		assert.Equal(t, "Grade", r.Form.Get("users[0][customfields][2][type]"))
		w.Write([]byte(`[{"id":99,"username":"0771234567"}]`))
	}, time.Second)

	id, err := c.CreateUser(context.Background(), NewUser{
		Username:  "0771234567",
		Password:  "0771234567",
		FirstName: "Nimal",
		LastName:  "Perera",
		Mobile:    "0771234567",
		Grade:     "Grade 10",
	})
	require.NoError(t, err)
	assert.Equal(t, 99, id)
}

func TestCreateUserWSException(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"exception":"moodle_exception","errorcode":"usernametaken","message":"Username already exists"}`))
	}, time.Second)

	_, err := c.CreateUser(context.Background(), NewUser{Username: "0771234567"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usernametaken")
}

func TestEnrol(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "enrol_manual_enrol_users", r.Form.Get("wsfunction"))
		assert.Equal(t, "5", r.Form.Get("enrolments[0][roleid]"))
		assert.Equal(t, "99", r.Form.Get("enrolments[0][userid]"))
		assert.Equal(t, "60", r.Form.Get("enrolments[0][courseid]"))
		w.Write([]byte(`null`))
	}, time.Second)

	assert.NoError(t, c.Enrol(context.Background(), 99, 60))
}
