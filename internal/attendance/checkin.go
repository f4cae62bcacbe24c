package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/metrics"
	"github.com/Spok95/edu-center-bot/internal/models"
)

// IdentityProvider ищет ученика по коду с бейджа/QR. Не найден — nil, nil.
type IdentityProvider interface {
	FindStudentByCode(ctx context.Context, code string) (*models.Student, error)
}

// Roster — то, что нужно резолверу от текущей сессии.
type Roster interface {
	Has(studentID int64) bool
	SetPresent(studentID int64) error
}

// Checkin превращает отсканированный код в отметку Present.
// Вызывается последовательно из одного потока сканирования.
type Checkin struct {
	ids IdentityProvider
	log *zap.Logger
}

func NewCheckin(ids IdentityProvider, log *zap.Logger) *Checkin {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checkin{ids: ids, log: log}
}

// Resolve: код → ученик → проверка ростера → SetPresent. Повторный скан того же ученика
// оставляет его Present. Возвращает id ученика для индикации успеха.
func (c *Checkin) Resolve(ctx context.Context, rawCode string, roster Roster) (int64, error) {
	code := NormalizeCode(rawCode)
	if code == "" {
		metrics.Checkins.WithLabelValues("invalid").Inc()
		return 0, apperr.Invalid("code", "empty scan")
	}

	dbCtx, cancel := ctxutil.WithDBTimeout(ctx)
	st, err := c.ids.FindStudentByCode(dbCtx, code)
	cancel()
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		metrics.Checkins.WithLabelValues("provider_error").Inc()
		return 0, apperr.Provider("identity.find_by_code", "code="+code, err)
	}
	if st == nil {
		metrics.Checkins.WithLabelValues("not_found").Inc()
		return 0, fmt.Errorf("code %q: %w", code, apperr.ErrNotFound)
	}

	if !roster.Has(st.ID) {
		metrics.Checkins.WithLabelValues("not_in_roster").Inc()
		c.log.Info("checkin outside roster", zap.Int64("student_id", st.ID), zap.String("code", code))
		return 0, fmt.Errorf("student %d: %w", st.ID, apperr.ErrNotInRoster)
	}
	if err := roster.SetPresent(st.ID); err != nil {
		return 0, err
	}
	metrics.Checkins.WithLabelValues("ok").Inc()
	return st.ID, nil
}

// NormalizeCode убирает пробелы и невидимые символы, которые сканер добавляет к строке.
func NormalizeCode(raw string) string {
	return strings.TrimFunc(raw, func(r rune) bool {
		return r <= ' ' || r == '\u200b' || r == '\ufeff'
	})
}
