package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"labattend/internal/model"
)

// Filter narrows a record listing. Zero fields match everything.
type Filter struct {
	StudentID string
	Lab       string
	Limit     int
	Offset    int
}

// Repository is the sink attendance records are appended to.
type Repository interface {
	Append(ctx context.Context, records []model.Record) error
	List(ctx context.Context, f Filter) ([]model.Record, error)
}

// SQLRepository persists records through database/sql. The queries use
// $n placeholders, which both pgx and sqlite3 accept.
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository creates a repo.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id               TEXT PRIMARY KEY,
		student_id       TEXT NOT NULL,
		date             TEXT NOT NULL,
		lab              TEXT NOT NULL,
		status           TEXT NOT NULL,
		percentage       INTEGER NOT NULL,
		marked_by        INTEGER NOT NULL DEFAULT 0,
		session_duration INTEGER NOT NULL DEFAULT 0,
		session_id       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records(student_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_lab ON attendance_records(lab)`,
}

// Migrate creates the table and indexes if they are missing.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append writes records in one transaction.
func (r *SQLRepository) Append(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance_records (id, student_id, date, lab, status, percentage, marked_by, session_duration, session_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.ID == "" {
			return errors.New("record id required")
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.StudentID, rec.Date, rec.Lab, string(rec.Status),
			rec.Percentage, rec.MarkedBy, rec.SessionDuration, rec.SessionID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// List returns records with basic filters, oldest date first.
func (r *SQLRepository) List(ctx context.Context, f Filter) ([]model.Record, error) {
	query := `SELECT id, student_id, date, lab, status, percentage, marked_by, session_duration, session_id FROM attendance_records`
	var args []any
	var clauses []string
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, "student_id = $"+strconv.Itoa(len(args)))
	}
	if f.Lab != "" {
		args = append(args, f.Lab)
		clauses = append(clauses, "lab = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date, session_id, student_id"
	if f.Limit > 0 {
		offset := f.Offset
		if offset < 0 {
			offset = 0
		}
		args = append(args, f.Limit, offset)
		query += " LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Record
	for rows.Next() {
		var rec model.Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.Date, &rec.Lab, &status, &rec.Percentage,
			&rec.MarkedBy, &rec.SessionDuration, &rec.SessionID); err != nil {
			return nil, err
		}
		rec.Status = model.Status(status)
		res = append(res, rec)
	}
	return res, rows.Err()
}

// NewID returns a fresh record identifier.
func NewID() string { return uuid.NewString() }
