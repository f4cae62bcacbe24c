// Package attendance — состояние посещаемости одной сессии (класс, дата):
// сбор ростера, ручные отметки, QR-отметки и сохранение.
package attendance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/models"
)

// RosterProvider — источник записей на курс и сохранённой посещаемости.
// GetClass возвращает nil, nil, если класса нет.
type RosterProvider interface {
	GetClass(ctx context.Context, classID int64) (*models.ClassSection, error)
	GetActiveEnrollments(ctx context.Context, classID int64) ([]models.Enrollment, error)
	GetAttendance(ctx context.Context, classID int64, date time.Time) ([]models.AttendanceRecord, error)
}

// Writer сохраняет одну запись посещаемости.
type Writer interface {
	SaveAttendance(ctx context.Context, rec models.AttendanceRecord) error
}

type Resolver struct {
	roster RosterProvider
	log    *zap.Logger
}

func NewResolver(roster RosterProvider, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{roster: roster, log: log}
}

// Resolve собирает записи сессии: по одной на каждого активного ученика в порядке записи.
// Пустой ростер — пустой список без ошибки.
func (r *Resolver) Resolve(ctx context.Context, classID int64, date time.Time) ([]models.AttendanceRecord, error) {
	date = models.SessionDate(date)
	key := fmt.Sprintf("class=%d date=%s", classID, date.Format("2006-01-02"))

	dbCtx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	class, err := r.roster.GetClass(dbCtx, classID)
	if err != nil {
		return nil, apperr.Provider("roster.get_class", key, err)
	}
	if class == nil {
		return nil, fmt.Errorf("class %d: %w", classID, apperr.ErrNotFound)
	}

	enrollments, err := r.roster.GetActiveEnrollments(dbCtx, classID)
	if err != nil {
		return nil, apperr.Provider("roster.get_enrollments", key, err)
	}
	if len(enrollments) == 0 {
		return []models.AttendanceRecord{}, nil
	}

	rows, err := r.roster.GetAttendance(dbCtx, classID, date)
	if err != nil {
		return nil, apperr.Provider("roster.get_attendance", key, err)
	}

	out := MergeRoster(classID, date, enrollments, rows)
	r.log.Debug("roster resolved",
		zap.Int64("class_id", classID),
		zap.Time("date", date),
		zap.Int("roster", len(out)),
		zap.Int("stored", len(rows)),
	)
	return out, nil
}

// MergeRoster — явное слияние по student id: сохранённая строка побеждает значение по умолчанию
// (Unmarked, Unsaved). Строки учеников вне ростера отбрасываются, порядок — порядок записи.
func MergeRoster(classID int64, date time.Time, enrollments []models.Enrollment, rows []models.AttendanceRecord) []models.AttendanceRecord {
	byStudent := make(map[int64]models.AttendanceRecord, len(rows))
	for _, row := range rows {
		byStudent[row.StudentID] = row
	}

	seen := make(map[int64]struct{}, len(enrollments))
	out := make([]models.AttendanceRecord, 0, len(enrollments))
	for _, e := range enrollments {
		if _, dup := seen[e.StudentID]; dup {
			continue
		}
		seen[e.StudentID] = struct{}{}

		rec := models.AttendanceRecord{
			StudentID:   e.StudentID,
			StudentName: e.StudentName,
			ClassID:     classID,
			Date:        date,
			State:       models.Unmarked,
		}
		if row, ok := byStudent[e.StudentID]; ok && row.State != models.Unmarked {
			rec.State = row.State
			rec.Note = row.Note
			rec.Saved = true
		}
		out = append(out, rec)
	}
	return out
}
