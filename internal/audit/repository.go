// Package audit stores the history of commands applied to the mini-split
// in the command_log table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-minisplit/internal/bridges/tuya"
)

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timeFormat is fixed width so created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Entry is one applied (or rejected) command.
type Entry struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Value     any       `json:"value,omitempty"`
	Index     int       `json:"dp,omitempty"`
	RawValue  any       `json:"raw_value,omitempty"`
	Source    string    `json:"source"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Command string // optional
	Source  string // optional: api, mqtt, cli
	Success *bool  // optional
	Limit   int    // default 50, max 200
	Offset  int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the command log operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository keeps the command log in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over db. The command_log table
// must exist (see the migrations package).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry, generating its ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "cmd-" + uuid.NewString()[:16]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	value, err := encodeValue(e.Value)
	if err != nil {
		return fmt.Errorf("encoding command value: %w", err)
	}
	raw, err := encodeValue(e.RawValue)
	if err != nil {
		return fmt.Errorf("encoding raw value: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, command, value, dp, raw_value, source, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Command, value, e.Index, raw, e.Source, e.Success,
		nullableString(e.Error), e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting command log entry: %w", err)
	}
	return nil
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		conditions []string
		args       []any
	)
	if filter.Command != "" {
		conditions = append(conditions, "command = ?")
		args = append(args, filter.Command)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, *filter.Success)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_log " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command log: %w", err)
	}

	query := "SELECT id, command, value, dp, raw_value, source, success, error, created_at FROM command_log " + //nolint:gosec // as above
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                Entry
			value, raw, errS sql.NullString
			createdAt        string
		)
		if err := rows.Scan(&e.ID, &e.Command, &value, &e.Index, &raw,
			&e.Source, &e.Success, &errS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log entry: %w", err)
		}
		e.Value = decodeValue(value)
		e.RawValue = decodeValue(raw)
		e.Error = errS.String

		t, err := time.Parse(timeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command log timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Recorder adapts a Repository to tuya.CommandRecorder.
type Recorder struct {
	repo Repository
}

var _ tuya.CommandRecorder = (*Recorder)(nil)

// NewRecorder returns a Recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// RecordCommand stores rec as a command log entry.
func (r *Recorder) RecordCommand(ctx context.Context, rec tuya.CommandRecord) error {
	return r.repo.Create(ctx, &Entry{
		Command:   rec.Command,
		Value:     rec.Value,
		Index:     rec.Index,
		RawValue:  rec.RawValue,
		Source:    rec.Source,
		Success:   rec.Success,
		Error:     rec.Error,
		CreatedAt: rec.At,
	})
}

// encodeValue stores values as JSON text; nil stays NULL.
func encodeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeValue(s sql.NullString) any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return s.String
	}
	return v
}

// nullableString returns nil for empty strings so the column stays NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
