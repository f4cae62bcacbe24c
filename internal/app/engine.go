// Package app связывает провайдеры с доменными потоками: сессии посещаемости,
// QR-отметки, напоминания родителям, оплаты и отчёты.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/attendance"
	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/models"
	"github.com/Spok95/edu-center-bot/internal/notify"
	"github.com/Spok95/edu-center-bot/internal/tuition"
)

// Store — всё, что движку нужно от хранилища.
type Store interface {
	attendance.RosterProvider
	attendance.Writer
	attendance.IdentityProvider
	tuition.PaymentProvider

	GetStudent(ctx context.Context, id int64) (*models.Student, error)
	ListClasses(ctx context.Context, activeOnly bool) ([]models.ClassSection, error)
	ListClassesByIDs(ctx context.Context, ids []int64) ([]models.ClassSection, error)
	ListActiveEnrollments(ctx context.Context) ([]models.Enrollment, error)
	ListEnrollments(ctx context.Context, from, to time.Time) ([]models.Enrollment, error)
	ListAttendance(ctx context.Context, classID int64, from, to time.Time, loc *time.Location) ([]models.AttendanceRecord, error)
	ListPayments(ctx context.Context, from, to time.Time) ([]models.Payment, error)
}

type Options struct {
	SaveWorkers     int
	DispatchWorkers int
	Periods         int // для классов без своего числа периодов
	GraceDays       int // срок оплаты в напоминании: asOf + GraceDays
	Location        *time.Location
	Amortizer       tuition.Amortizer
	Templates       map[notify.Category]string
	Deduper         notify.Deduper
	Now             func() time.Time
}

type Engine struct {
	store      Store
	resolver   *attendance.Resolver
	checkin    *attendance.Checkin
	payments   *tuition.Payments
	dispatcher *notify.Dispatcher
	opts       Options
	log        *zap.Logger

	mu       sync.Mutex
	sessions map[string]*attendance.Ledger
	locks    *KeyLimiter
}

func NewEngine(store Store, ch notify.Channel, opts Options, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Periods <= 0 {
		opts.Periods = models.DefaultPeriods
	}
	if opts.Deduper == nil {
		opts.Deduper = notify.NewMemoryDeduper()
	}
	tmpl := make(map[notify.Category]string, len(notify.DefaultTemplates))
	for c, t := range notify.DefaultTemplates {
		tmpl[c] = t
	}
	for c, t := range opts.Templates {
		if t != "" {
			tmpl[c] = t
		}
	}
	opts.Templates = tmpl

	return &Engine{
		store:      store,
		resolver:   attendance.NewResolver(store, log.Named("roster")),
		checkin:    attendance.NewCheckin(store, log.Named("checkin")),
		payments:   tuition.NewPayments(store, log.Named("payments")),
		dispatcher: notify.NewDispatcher(ch, opts.DispatchWorkers, log.Named("notify")),
		opts:       opts,
		log:        log,
		sessions:   make(map[string]*attendance.Ledger),
		locks:      NewKeyLimiter(),
	}
}

// authorize: без оператора в ctx (фоновые задачи) — разрешено.
func authorize(ctx context.Context, op string, can func(models.Role) bool) error {
	u, ok := ctxutil.Operator(ctx)
	if !ok || can(u.Role) {
		return nil
	}
	return fmt.Errorf("%s by %d (%s): %w", op, u.ID, u.Role, apperr.ErrForbidden)
}

// template — шаблон запроса или настроенный для категории.
func (e *Engine) template(c notify.Category, override string) string {
	if override != "" {
		return override
	}
	return e.opts.Templates[c]
}

func (e *Engine) today() time.Time {
	return models.SessionDate(e.opts.Now().In(e.opts.Location))
}
