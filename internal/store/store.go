// Package store provides persistence for enrollment codes and conversation transcripts.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// EnrollmentRecord maps an 8-digit enrollment code to a course.
// CourseID may be a composite identifier; see engine.SplitCourseID.
type EnrollmentRecord struct {
	Code       string `db:"code"`
	CourseID   int    `db:"course_id"`
	CourseName string `db:"course_name"`
	Grade      string `db:"grade"`
}

// ConversationEntry is a single persisted line of a finished dialog.
type ConversationEntry struct {
	ID        string    `db:"id" json:"id"`
	WAID      string    `db:"wa_id" json:"wa_id"`
	Direction string    `db:"direction" json:"direction"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Store is the relational collaborator: enrollment-code catalog plus an
// append-only conversation log keyed by sender identifier.
type Store interface {
	// CourseByCode resolves an enrollment code to a course row.
	CourseByCode(ctx context.Context, code string) (*EnrollmentRecord, error)

	// SaveConversation appends a finished transcript for a sender.
	SaveConversation(ctx context.Context, waID string, entries []ConversationEntry) error

	// ConversationsByUser returns all stored lines for a sender ordered by time.
	ConversationsByUser(ctx context.Context, waID string) ([]ConversationEntry, error)

	// Close releases the underlying connection pool.
	Close() error
}
