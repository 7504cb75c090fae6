package mariadb

import (
	"context"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceRepository provides MariaDB-backed attendance storage.
// INSERT IGNORE against the attendance_once_per_day key makes the check-then-write atomic.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new MariaDB attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// InsertIfAbsent stores rec unless a record for its key already exists.
func (r *AttendanceRepository) InsertIfAbsent(ctx context.Context, rec attendance.Record) (attendance.Record, bool, error) {
	res, err := r.pool.db.ExecContext(ctx, `
		INSERT IGNORE INTO attendance (roll_no, class_code, subject, date, marked_at, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Key.Identity, rec.Key.ClassCode, rec.Key.Subject, rec.Key.Day, rec.Time.UTC(), rec.Confidence)
	if err != nil {
		return attendance.Record{}, false, database.Unavailable("insert attendance", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return attendance.Record{}, false, database.Unavailable("attendance rows affected", err)
	}
	if affected == 0 {
		return attendance.Record{}, false, nil
	}

	if rec.ID, err = res.LastInsertId(); err != nil {
		return attendance.Record{}, false, database.Unavailable("attendance id", err)
	}
	return rec, true, nil
}

// ListByIdentity returns all records of a student, newest first.
func (r *AttendanceRepository) ListByIdentity(ctx context.Context, identity string) ([]attendance.Record, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, roll_no, class_code, subject, DATE_FORMAT(date, '%Y-%m-%d'), marked_at, confidence
		FROM attendance
		WHERE roll_no = ?
		ORDER BY marked_at DESC, id DESC
	`, identity)
	if err != nil {
		return nil, database.Unavailable("query attendance", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		var rec attendance.Record
		if err := rows.Scan(&rec.ID, &rec.Key.Identity, &rec.Key.ClassCode, &rec.Key.Subject,
			&rec.Key.Day, &rec.Time, &rec.Confidence); err != nil {
			return nil, database.Unavailable("scan attendance", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("iterate attendance", err)
	}
	return records, nil
}
