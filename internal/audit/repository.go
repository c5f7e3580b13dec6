package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pagination limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout has fixed-width fractions so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Filter controls which calls List returns. Empty fields match everything.
type Filter struct {
	Service string
	EntryID string
	Source  string
	Status  string
	Limit   int // default 50, max 200
	Offset  int
}

// ListResult contains one page of calls.
type ListResult struct {
	Calls  []Call `json:"calls"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Repository defines the interface for service call log storage.
type Repository interface {
	Create(ctx context.Context, call *Call) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores calls in the service_calls table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new service call repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a call. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, call *Call) error {
	if call.ID == "" {
		call.ID = "call-" + uuid.NewString()[:8]
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}

	var dataJSON *string
	if len(call.Data) > 0 {
		b, err := json.Marshal(call.Data)
		if err != nil {
			return fmt.Errorf("marshalling call data: %w", err)
		}
		s := string(b)
		dataJSON = &s
	}

	var recordID any
	if call.RecordID != 0 {
		recordID = call.RecordID
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO service_calls (id, service, entry_id, source, actor, status, record_id, error, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ID, call.Service,
		nullableString(call.EntryID), call.Source, nullableString(call.Actor),
		string(call.Status), recordID, nullableString(call.Error), dataJSON,
		call.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting service call: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns calls matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit // WHERE clause assembly from filter fields
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for column, value := range map[string]string{
		"service":  filter.Service,
		"entry_id": filter.EntryID,
		"source":   filter.Source,
		"status":   filter.Status,
	} {
		if value != "" {
			conditions = append(conditions, column+" = ?")
			args = append(args, value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM service_calls %s", where) //nolint:gosec // WHERE built from fixed column names and ? placeholders
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting service calls: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from fixed column names and ? placeholders
		"SELECT id, service, entry_id, source, actor, status, record_id, error, data, created_at FROM service_calls %s ORDER BY created_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying service calls: %w", err)
	}
	defer rows.Close()

	calls := []Call{}
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating service calls: %w", err)
	}

	return &ListResult{
		Calls:  calls,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func scanCall(rows *sql.Rows) (Call, error) {
	var (
		call                         Call
		status, createdAt            string
		entryID, actor, errMsg, data sql.NullString
		recordID                     sql.NullInt64
	)

	if err := rows.Scan(&call.ID, &call.Service, &entryID, &call.Source, &actor,
		&status, &recordID, &errMsg, &data, &createdAt); err != nil {
		return Call{}, fmt.Errorf("scanning service call: %w", err)
	}

	call.EntryID = entryID.String
	call.Actor = actor.String
	call.Status = Status(status)
	call.RecordID = int(recordID.Int64)
	call.Error = errMsg.String
	if data.Valid && data.String != "" {
		var m map[string]any
		if json.Unmarshal([]byte(data.String), &m) == nil {
			call.Data = m
		}
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Call{}, fmt.Errorf("parsing service call timestamp %q: %w", createdAt, err)
	}
	call.CreatedAt = t

	return call, nil
}
