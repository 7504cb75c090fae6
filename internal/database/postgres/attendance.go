package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage.
// The attendance_once_per_day constraint makes the check-then-write atomic.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// InsertIfAbsent stores rec unless a record for its key already exists.
func (r *AttendanceRepository) InsertIfAbsent(ctx context.Context, rec attendance.Record) (attendance.Record, bool, error) {
	query := `
		INSERT INTO attendance (roll_no, class_code, subject, date, marked_at, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (roll_no, class_code, subject, date) DO NOTHING
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		rec.Key.Identity, rec.Key.ClassCode, rec.Key.Subject, rec.Key.Day, rec.Time, rec.Confidence,
	).Scan(&rec.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Record{}, false, nil
	}
	if err != nil {
		return attendance.Record{}, false, database.Unavailable("insert attendance", err)
	}
	return rec, true, nil
}

// ListByIdentity returns all records of a student, newest first.
func (r *AttendanceRepository) ListByIdentity(ctx context.Context, identity string) ([]attendance.Record, error) {
	query := `
		SELECT id, roll_no, class_code, subject, date, marked_at, confidence
		FROM attendance
		WHERE roll_no = $1
		ORDER BY marked_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, identity)
	if err != nil {
		return nil, database.Unavailable("query attendance", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		var (
			rec attendance.Record
			day time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.Key.Identity, &rec.Key.ClassCode, &rec.Key.Subject,
			&day, &rec.Time, &rec.Confidence); err != nil {
			return nil, database.Unavailable("scan attendance", err)
		}
		rec.Key.Day = day.Format(attendance.DayLayout)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("iterate attendance", err)
	}
	return records, nil
}
