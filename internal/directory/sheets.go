// Package directory resolves enrollment codes against the spreadsheet-backed
// group catalog. The sheet is read-only from the bot's perspective: one row
// per group code with the course name and the invite link.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/learnsl/enrollbot/internal/config"
	"github.com/learnsl/enrollbot/internal/logger"
	"log/slog"
)

// ErrNotFound is returned when no group row matches the code.
var ErrNotFound = errors.New("directory: code not found")

// GroupRecord maps an enrollment code to a group invite.
type GroupRecord struct {
	Code       string
	CourseName string
	JoinLink   string
}

// Client reads the group catalog through the spreadsheet values API.
type Client struct {
	baseURL string
	sheetID string
	readRng string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

// New builds a Client from configuration.
func New(cfg config.DirectoryConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		sheetID: cfg.SheetID,
		readRng: cfg.Range,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// GroupByCode scans the sheet for a row whose first column equals code.
// Remote failures are logged and degraded to ErrNotFound so the greeting
// decision table can still fall through to the help message.
func (c *Client) GroupByCode(ctx context.Context, code string) (*GroupRecord, error) {
	start := time.Now()
	rows, err := c.fetchRows(ctx)
	if err != nil {
		logger.DIR.Warn("group lookup degraded",
			slog.String("event", "directory.lookup"),
			slog.String("status", "fail"),
			slog.String("code", code),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return nil, ErrNotFound
	}

	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		if strings.TrimSpace(row[0]) != code {
			continue
		}
		logger.DIR.Debug("group code matched",
			slog.String("event", "directory.lookup"),
			slog.String("status", "ok"),
			slog.String("code", code),
			slog.Duration("duration", logger.Took(start)),
		)
		return &GroupRecord{
			Code:       code,
			CourseName: strings.TrimSpace(row[1]),
			JoinLink:   strings.TrimSpace(row[2]),
		}, nil
	}
	return nil, ErrNotFound
}

func (c *Client) fetchRows(ctx context.Context) ([][]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?key=%s",
		c.baseURL, url.PathEscape(c.sheetID), url.PathEscape(c.readRng), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var payload struct {
		Values [][]string `json:"values"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode sheet values: %w", err)
	}
	return payload.Values, nil
}
