package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/learnsl/enrollbot/internal/logger"
	"log/slog"
)

// PostgresStore implements Store on top of an sqlx connection pool.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an already-connected pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CourseByCode resolves an enrollment code to a course row.
func (s *PostgresStore) CourseByCode(ctx context.Context, code string) (*EnrollmentRecord, error) {
	start := time.Now()
	var rec EnrollmentRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT code, course_id, course_name, grade FROM enrollment_codes WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		logger.DB.Error("course lookup failed",
			slog.String("event", "codes.lookup"),
			slog.String("code", code),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("course by code %s: %w", code, err)
	}
	return &rec, nil
}

// SaveConversation appends a finished transcript for a sender.
func (s *PostgresStore) SaveConversation(ctx context.Context, waID string, entries []ConversationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transcript tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for i, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			// Preserve transcript ordering even when entries land in the
			// same wall-clock microsecond.
			createdAt = now.Add(time.Duration(i) * time.Microsecond)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_log (id, wa_id, direction, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
			id, waID, e.Direction, e.Body, createdAt,
		); err != nil {
			return fmt.Errorf("insert transcript row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transcript: %w", err)
	}

	logger.DB.Debug("transcript saved",
		slog.String("event", "conversation.save"),
		slog.String("wa_id", waID),
		slog.Int("count", len(entries)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// ConversationsByUser returns all stored lines for a sender ordered by time.
func (s *PostgresStore) ConversationsByUser(ctx context.Context, waID string) ([]ConversationEntry, error) {
	var rows []ConversationEntry
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, wa_id, direction, body, created_at FROM conversation_log WHERE wa_id = $1 ORDER BY created_at`, waID)
	if err != nil {
		return nil, fmt.Errorf("conversations by user %s: %w", waID, err)
	}
	return rows, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
