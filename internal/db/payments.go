package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/models"
)

const paymentColumns = `id, student_id, class_id, amount, paid_at, method, status, receipt_no, note, period_no`

func scanPayment(r rowScanner) (models.Payment, error) {
	var (
		p      models.Payment
		period sql.NullInt64
	)
	if err := r.Scan(&p.ID, &p.StudentID, &p.ClassID, &p.Amount, &p.PaidAt, &p.Method, &p.Status, &p.ReceiptNo, &p.Note, &period); err != nil {
		return p, err
	}
	if period.Valid {
		n := int(period.Int64)
		p.PeriodNo = &n
	}
	return p, nil
}

func periodArg(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

// GetPayments — платежи ученика или все (studentID == nil), по времени оплаты.
func (s *Store) GetPayments(ctx context.Context, studentID *int64) ([]models.Payment, error) {
	if studentID == nil {
		return s.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY paid_at, id`)
	}
	return s.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE student_id = $1 ORDER BY paid_at, id`, *studentID)
}

// ListPayments — платежи за [from, to).
func (s *Store) ListPayments(ctx context.Context, from, to time.Time) ([]models.Payment, error) {
	return s.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE paid_at >= $1 AND paid_at < $2 ORDER BY paid_at, id`, from, to)
}

func (s *Store) queryPayments(ctx context.Context, q string, args ...any) ([]models.Payment, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePayment(ctx context.Context, p models.Payment) (models.Payment, error) {
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO payments (student_id, class_id, amount, paid_at, method, status, receipt_no, note, period_no)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+paymentColumns,
		p.StudentID, p.ClassID, p.Amount, p.PaidAt, p.Method, p.Status, p.ReceiptNo, p.Note, periodArg(p.PeriodNo))
	return scanPayment(row)
}

// UpdatePayment — ErrNotFound, если платежа нет. Номер квитанции не меняется.
func (s *Store) UpdatePayment(ctx context.Context, id int64, p models.Payment) (models.Payment, error) {
	row := s.DB.QueryRowContext(ctx, `
		UPDATE payments
		SET student_id = $2, class_id = $3, amount = $4, paid_at = $5,
		    method = $6, status = $7, note = $8, period_no = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+paymentColumns,
		id, p.StudentID, p.ClassID, p.Amount, p.PaidAt, p.Method, p.Status, p.Note, periodArg(p.PeriodNo))
	out, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, apperr.ErrNotFound
	}
	return out, err
}
