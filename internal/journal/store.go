// internal/journal/store.go
//
// Formkit – Journal: attempt rows.
//
// Context
//   One row per resolved attempt in `form_submission_attempt`.  Field values
//   and file contents are never stored; the journal answers "how often does
//   this form fail, and how" without holding personal data.
//
// Schema
//
//	CREATE TABLE form_submission_attempt (
//	  id          CHAR(36)     NOT NULL PRIMARY KEY,
//	  instance_id CHAR(36)     NOT NULL,
//	  form_id     VARCHAR(128) NOT NULL,
//	  source      VARCHAR(128) NOT NULL,
//	  result      VARCHAR(32)  NOT NULL,
//	  message     VARCHAR(512) NOT NULL,
//	  file_count  INT          NOT NULL,
//	  duration_ms BIGINT       NOT NULL,
//	  created_at  DATETIME(3)  NOT NULL,
//	  KEY idx_form_created (form_id, created_at)
//	);
//
//------------------------------------------------------------------------------

package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Entry is one journal row.
type Entry struct {
	ID         string    `db:"id"`
	InstanceID string    `db:"instance_id"`
	FormID     string    `db:"form_id"`
	Source     string    `db:"source"`
	Result     string    `db:"result"`
	Message    string    `db:"message"`
	FileCount  int       `db:"file_count"`
	DurationMS int64     `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}

// Summary counts attempts of one form by result.
type Summary struct {
	Result string `db:"result"`
	Count  int    `db:"n"`
}

// Store writes and reads entries.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps db.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

const insertSQL = `INSERT INTO form_submission_attempt
  (id, instance_id, form_id, source, result, message, file_count, duration_ms, created_at)
VALUES
  (:id, :instance_id, :form_id, :source, :result, :message, :file_count, :duration_ms, :created_at)`

// Record inserts e.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if _, err := s.db.NamedExecContext(ctx, insertSQL, e); err != nil {
		return fmt.Errorf("journal insert %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns the newest limit entries of formID.
func (s *Store) Recent(ctx context.Context, formID string, limit int) ([]Entry, error) {
	var out []Entry
	err := s.db.SelectContext(ctx, &out, `
        SELECT id, instance_id, form_id, source, result, message, file_count, duration_ms, created_at
        FROM form_submission_attempt
        WHERE form_id = ?
        ORDER BY created_at DESC
        LIMIT ?`, formID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal recent %s: %w", formID, err)
	}
	return out, nil
}

// Summarize counts attempts of formID since t, grouped by result.
func (s *Store) Summarize(ctx context.Context, formID string, since time.Time) ([]Summary, error) {
	var out []Summary
	err := s.db.SelectContext(ctx, &out, `
        SELECT result, COUNT(*) AS n
        FROM form_submission_attempt
        WHERE form_id = ? AND created_at >= ?
        GROUP BY result
        ORDER BY result`, formID, since)
	if err != nil {
		return nil, fmt.Errorf("journal summary %s: %w", formID, err)
	}
	return out, nil
}
