package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Spok95/edu-center-bot/internal/models"
)

// FindStudentByCode — поиск по коду с QR-карточки; nil, nil если не найден.
func (s *Store) FindStudentByCode(ctx context.Context, code string) (*models.Student, error) {
	return s.getStudent(ctx, `WHERE code = $1`, code)
}

func (s *Store) GetStudent(ctx context.Context, id int64) (*models.Student, error) {
	return s.getStudent(ctx, `WHERE id = $1`, id)
}

func (s *Store) getStudent(ctx context.Context, where string, arg any) (*models.Student, error) {
	var st models.Student
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, code, guardian_contact FROM students `+where, arg,
	).Scan(&st.ID, &st.Name, &st.Code, &st.GuardianContact)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) CreateStudent(ctx context.Context, st models.Student) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO students (name, code, guardian_contact)
		VALUES ($1, $2, $3)
		RETURNING id
	`, st.Name, st.Code, st.GuardianContact).Scan(&id)
	return id, err
}

// SetGuardianContact — пустая строка снимает контакт.
func (s *Store) SetGuardianContact(ctx context.Context, studentID int64, contact string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE students SET guardian_contact = $1 WHERE id = $2`, contact, studentID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}
