package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/Spok95/edu-center-bot/internal/models"
)

const classColumns = `id, name, fee, periods, is_active, start_date, end_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClass(r rowScanner) (models.ClassSection, error) {
	var (
		c          models.ClassSection
		start, end sql.NullTime
	)
	if err := r.Scan(&c.ID, &c.Name, &c.Fee, &c.Periods, &c.IsActive, &start, &end); err != nil {
		return c, err
	}
	c.StartDate = timeOrZero(start)
	c.EndDate = timeOrZero(end)
	return c, nil
}

// GetClass возвращает nil, nil, если класса нет.
func (s *Store) GetClass(ctx context.Context, classID int64) (*models.ClassSection, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, classID)
	c, err := scanClass(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListClasses(ctx context.Context, activeOnly bool) ([]models.ClassSection, error) {
	q := `SELECT ` + classColumns + ` FROM classes`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY name, id`
	return s.queryClasses(ctx, q)
}

func (s *Store) ListClassesByIDs(ctx context.Context, ids []int64) ([]models.ClassSection, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryClasses(ctx, `SELECT `+classColumns+` FROM classes WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
}

func (s *Store) queryClasses(ctx context.Context, q string, args ...any) ([]models.ClassSection, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.ClassSection
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateClass(ctx context.Context, c models.ClassSection) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO classes (name, fee, periods, is_active, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, c.Name, c.Fee, c.BillingPeriods(), c.IsActive, nullDay(c.StartDate), nullDay(c.EndDate)).Scan(&id)
	return id, err
}
