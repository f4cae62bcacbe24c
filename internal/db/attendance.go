package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Spok95/edu-center-bot/internal/models"
)

// GetAttendance — сохранённые отметки класса за день. Дата записи — запрошенная,
// чтобы не терять зону сессии.
func (s *Store) GetAttendance(ctx context.Context, classID int64, date time.Time) ([]models.AttendanceRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT a.student_id, s.name, a.present, a.note
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE a.class_id = $1 AND a.date = $2
		ORDER BY a.student_id
	`, classID, day(date))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.AttendanceRecord
	for rows.Next() {
		var (
			r       models.AttendanceRecord
			present bool
		)
		if err := rows.Scan(&r.StudentID, &r.StudentName, &present, &r.Note); err != nil {
			return nil, err
		}
		r.ClassID = classID
		r.Date = models.SessionDate(date)
		r.State = models.StateFromStored(present)
		r.Saved = true
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveAttendance — upsert одной отметки. Unmarked не хранится.
func (s *Store) SaveAttendance(ctx context.Context, rec models.AttendanceRecord) error {
	if rec.State == models.Unmarked {
		return fmt.Errorf("save attendance student=%d: unmarked record", rec.StudentID)
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO attendance (class_id, student_id, date, present, note)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (class_id, student_id, date) DO UPDATE
		SET present = EXCLUDED.present,
		    note = EXCLUDED.note,
		    updated_at = now()
	`, rec.ClassID, rec.StudentID, day(rec.Date), rec.State == models.Present, rec.Note)
	return err
}

// ListAttendance — отметки за [from, to); classID == 0 — по всем классам.
// Дата переводится в зону loc.
func (s *Store) ListAttendance(ctx context.Context, classID int64, from, to time.Time, loc *time.Location) ([]models.AttendanceRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT a.class_id, a.student_id, s.name, to_char(a.date, 'YYYY-MM-DD'), a.present, a.note
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE ($1::bigint = 0 OR a.class_id = $1) AND a.date >= $2 AND a.date < $3
		ORDER BY a.date, a.class_id, a.student_id
	`, classID, day(from), day(to))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if loc == nil {
		loc = time.Local
	}
	var out []models.AttendanceRecord
	for rows.Next() {
		var (
			r       models.AttendanceRecord
			dateStr string
			present bool
		)
		if err := rows.Scan(&r.ClassID, &r.StudentID, &r.StudentName, &dateStr, &present, &r.Note); err != nil {
			return nil, err
		}
		d, err := time.ParseInLocation("2006-01-02", dateStr, loc)
		if err != nil {
			return nil, err
		}
		r.Date = d
		r.State = models.StateFromStored(present)
		r.Saved = true
		out = append(out, r)
	}
	return out, rows.Err()
}
