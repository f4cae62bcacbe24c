package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/models"
)

const enrollmentSelect = `
	SELECT e.id, e.student_id, e.class_id, e.enrolled_at, e.status, s.name, s.guardian_contact
	FROM enrollments e
	JOIN students s ON s.id = e.student_id`

// GetActiveEnrollments — ростер класса в порядке записи.
func (s *Store) GetActiveEnrollments(ctx context.Context, classID int64) ([]models.Enrollment, error) {
	return s.queryEnrollments(ctx, enrollmentSelect+`
		WHERE e.class_id = $1 AND e.status = 'active'
		ORDER BY e.enrolled_at, e.id`, classID)
}

// ListActiveEnrollments — все активные записи центра.
func (s *Store) ListActiveEnrollments(ctx context.Context) ([]models.Enrollment, error) {
	return s.queryEnrollments(ctx, enrollmentSelect+`
		WHERE e.status = 'active'
		ORDER BY e.student_id, e.class_id`)
}

// ListEnrollments — записи, сделанные в [from, to).
func (s *Store) ListEnrollments(ctx context.Context, from, to time.Time) ([]models.Enrollment, error) {
	return s.queryEnrollments(ctx, enrollmentSelect+`
		WHERE e.enrolled_at >= $1 AND e.enrolled_at < $2
		ORDER BY e.enrolled_at, e.id`, day(from), day(to))
}

func (s *Store) queryEnrollments(ctx context.Context, q string, args ...any) ([]models.Enrollment, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Enrollment
	for rows.Next() {
		var e models.Enrollment
		if err := rows.Scan(&e.ID, &e.StudentID, &e.ClassID, &e.EnrolledAt, &e.Status, &e.StudentName, &e.GuardianContact); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Enroll(ctx context.Context, studentID, classID int64, at time.Time) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO enrollments (student_id, class_id, enrolled_at, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING id
	`, studentID, classID, day(at)).Scan(&id)
	return id, err
}

func (s *Store) Withdraw(ctx context.Context, enrollmentID int64) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE enrollments SET status = 'withdrawn' WHERE id = $1`, enrollmentID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
