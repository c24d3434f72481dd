// Package lms talks to the external learning-management system over its
// webservice REST endpoint. The LMS is the system of record for users and
// course enrolments; everything here degrades rather than blocks a turn.
package lms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/learnsl/enrollbot/internal/config"
	"github.com/learnsl/enrollbot/internal/logger"
	"log/slog"
)

const wsPath = "/webservice/rest/server.php"

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("lms: user not found")

// User is the LMS user record, keyed by username.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// NewUser carries the fields required to create an LMS user. Password is
// initialized equal to the username (the normalized mobile number).
type NewUser struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Mobile    string
	Class     string
	Grade     string
}

// Client is the enrollment service client. All calls are bounded by the
// configured timeout; a timed-out lookup reports absent rather than failing.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	roleID  int
	http    *http.Client
}

// New builds a Client from configuration.
func New(cfg config.LMSConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		roleID:  cfg.StudentRoleID,
		http:    buildHTTPClient(cfg.Timeout),
	}
}

func buildHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// UserByUsername checks whether a user exists. A timeout or transport error
// degrades to (nil, ErrNotFound) after logging so the conversation can still
// produce a reply; see Exists for the boolean form.
func (c *Client) UserByUsername(ctx context.Context, username string) (*User, error) {
	params := url.Values{}
	params.Set("wsfunction", "core_user_get_users_by_field")
	params.Set("field", "username")
	params.Set("values[0]", username)

	start := time.Now()
	body, err := c.call(ctx, params)
	if err != nil {
		logger.LMS.Warn("user lookup degraded",
			slog.String("event", "lms.lookup"),
			slog.String("status", "fail"),
			slog.String("username", username),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return nil, ErrNotFound
	}

	var users []User
	if err := json.Unmarshal(body, &users); err != nil {
		logger.LMS.Warn("user lookup returned unexpected payload",
			slog.String("event", "lms.lookup"),
			slog.String("status", "fail"),
			slog.String("username", username),
			slog.String("err", err.Error()),
		)
		return nil, ErrNotFound
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	logger.LMS.Debug("user found",
		slog.String("event", "lms.lookup"),
		slog.String("status", "ok"),
		slog.String("username", username),
		slog.Duration("duration", logger.Took(start)),
	)
	return &users[0], nil
}

// CreateUser creates a new LMS user and returns its identifier.
func (c *Client) CreateUser(ctx context.Context, nu NewUser) (int, error) {
	params := url.Values{}
	params.Set("wsfunction", "core_user_create_users")
	params.Set("users[0][username]", nu.Username)
	params.Set("users[0][password]", nu.Password)
	params.Set("users[0][firstname]", nu.FirstName)
	params.Set("users[0][lastname]", nu.LastName)
	params.Set("users[0][email]", nu.Username+"@enroll.invalid")
	custom := []struct{ field, value string }{
		{"Mobile", nu.Mobile},
		{"Class", nu.Class},
		{"Grade", nu.Grade},
		{"Phone", nu.Mobile},
	}
	for i, cf := range custom {
		params.Set(fmt.Sprintf("users[0][customfields][%d][type]", i), cf.field)
		params.Set(fmt.Sprintf("users[0][customfields][%d][value]", i), cf.value)
	}

	start := time.Now()
	body, err := c.call(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", nu.Username, err)
	}

	var created []struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || len(created) == 0 {
		return 0, fmt.Errorf("create user %s: unexpected response", nu.Username)
	}
	logger.LMS.Info("user created",
		slog.String("event", "lms.create"),
		slog.String("status", "ok"),
		slog.String("username", nu.Username),
		slog.Int("user_id", created[0].ID),
		slog.Duration("duration", logger.Took(start)),
	)
	return created[0].ID, nil
}

// Enrol enrols the user in a single course with the fixed student role.
func (c *Client) Enrol(ctx context.Context, userID, courseID int) error {
	params := url.Values{}
	params.Set("wsfunction", "enrol_manual_enrol_users")
	params.Set("enrolments[0][roleid]", strconv.Itoa(c.roleID))
	params.Set("enrolments[0][userid]", strconv.Itoa(userID))
	params.Set("enrolments[0][courseid]", strconv.Itoa(courseID))

	start := time.Now()
	_, err := c.call(ctx, params)
	logger.LMS.Info("enrolment attempted",
		slog.String("event", "lms.enrol"),
		slog.String("status", logger.Status(err)),
		slog.Int("user_id", userID),
		slog.Int("course_id", courseID),
		slog.Duration("duration", logger.Took(start)),
	)
	if err != nil {
		return fmt.Errorf("enrol user %d in course %d: %w", userID, courseID, err)
	}
	return nil
}

type wsError struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

func (c *Client) call(ctx context.Context, params url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params.Set("wstoken", c.token)
	params.Set("moodlewsrestformat", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+wsPath,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lms status %s", resp.Status)
	}

	// The webservice reports failures as a JSON object with an exception
	// field, still under HTTP 200.
	var werr wsError
	if err := json.Unmarshal(body, &werr); err == nil && werr.Exception != "" {
		return nil, fmt.Errorf("lms %s: %s", werr.ErrorCode, werr.Message)
	}
	return body, nil
}
