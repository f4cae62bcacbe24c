package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/attendance"
	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/models"
	"github.com/Spok95/edu-center-bot/internal/notify"
)

// NotifyAbsences уведомляет родителей отсутствующих. Берётся открытая сессия,
// иначе сохранённые отметки. Нет отсутствующих — пустой результат без ошибки.
func (e *Engine) NotifyAbsences(ctx context.Context, classID int64, date time.Time, template string) (notify.BatchResult, error) {
	if err := authorize(ctx, "notify.absences", models.Role.CanSendNotifications); err != nil {
		return notify.BatchResult{}, err
	}
	date = e.sessionDate(date)
	l, err := e.session(classID, date)
	if err != nil {
		recs, rerr := e.resolver.Resolve(ctx, classID, date)
		if rerr != nil {
			return notify.BatchResult{}, rerr
		}
		l = attendance.NewLedger(classID, date, recs)
	}
	absent := l.Absent()
	if len(absent) == 0 {
		return notify.BatchResult{}, nil
	}

	key := fmt.Sprintf("class=%d", classID)
	dbCtx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	class, err := e.store.GetClass(dbCtx, classID)
	if err != nil {
		return notify.BatchResult{}, apperr.Provider("notify.get_class", key, err)
	}
	if class == nil {
		return notify.BatchResult{}, fmt.Errorf("class %d: %w", classID, apperr.ErrNotFound)
	}
	enrollments, err := e.store.GetActiveEnrollments(dbCtx, classID)
	if err != nil {
		return notify.BatchResult{}, apperr.Provider("notify.get_enrollments", key, err)
	}
	contacts := make(map[int64]string, len(enrollments))
	for _, en := range enrollments {
		contacts[en.StudentID] = en.GuardianContact
	}

	tmpl := e.template(notify.CategoryAbsence, template)
	recipients := make([]notify.Recipient, 0, len(absent))
	for _, r := range absent {
		recipients = append(recipients, notify.Recipient{
			StudentID: r.StudentID,
			Contact:   contacts[r.StudentID],
			Category:  notify.CategoryAbsence,
			Template:  tmpl,
			Vars: notify.Vars{
				notify.PhStudentName: r.StudentName,
				notify.PhDate:        notify.FormatDate(date),
				notify.PhClass:       class.Name,
			},
		})
	}
	return e.dispatch(ctx, classID, date, recipients), nil
}

// NotifyTuitionDue — одно напоминание на ученика с суммой долга по всем классам.
// Нет должников — пустой результат без ошибки.
func (e *Engine) NotifyTuitionDue(ctx context.Context, asOf time.Time, template string) (notify.BatchResult, error) {
	if err := authorize(ctx, "notify.tuition", models.Role.CanSendNotifications); err != nil {
		return notify.BatchResult{}, err
	}
	asOf = asOf.In(e.opts.Location)
	totals, err := e.unpaid(ctx, asOf)
	if err != nil {
		return notify.BatchResult{}, err
	}
	if len(totals) == 0 {
		return notify.BatchResult{}, nil
	}

	deadline := models.SessionDate(asOf).AddDate(0, 0, e.opts.GraceDays)
	tmpl := e.template(notify.CategoryTuitionDue, template)
	recipients := make([]notify.Recipient, 0, len(totals))
	for _, t := range totals {
		recipients = append(recipients, notify.Recipient{
			StudentID: t.StudentID,
			Contact:   t.GuardianContact,
			Category:  notify.CategoryTuitionDue,
			Template:  tmpl,
			Vars: notify.Vars{
				notify.PhStudentName: t.StudentName,
				notify.PhDate:        notify.FormatDate(deadline),
				notify.PhClass:       strings.Join(t.Classes, ", "),
				notify.PhAmount:      notify.FormatVND(t.AmountDue),
				notify.PhMonths:      strconv.Itoa(t.PeriodsUnpaid),
			},
		})
	}
	return e.dispatch(ctx, 0, asOf, recipients), nil
}

// dispatch: повтор того же повода тому же ученику в тот же день отсекается.
// scope — класс для уведомлений по сессии, 0 — без класса.
// Ключи неотправленных освобождаются, чтобы следующий запуск мог повторить.
func (e *Engine) dispatch(ctx context.Context, scope int64, day time.Time, recipients []notify.Recipient) notify.BatchResult {
	fresh := make([]notify.Recipient, 0, len(recipients))
	claimed := make(map[int64]string, len(recipients))
	dups := 0
	for _, r := range recipients {
		if r.Contact == "" {
			fresh = append(fresh, r) // NoContact посчитает диспетчер
			continue
		}
		key := notify.DedupKey(r.Category, scope, r.StudentID, day)
		ok, err := e.opts.Deduper.Claim(ctx, key)
		if err != nil {
			e.log.Warn("dedup unavailable, sending anyway", zap.String("key", key), zap.Error(err))
			fresh = append(fresh, r)
			continue
		}
		if !ok {
			dups++
			continue
		}
		claimed[r.StudentID] = key
		fresh = append(fresh, r)
	}

	res := e.dispatcher.Dispatch(ctx, fresh)
	res.Deduplicated = dups

	delivered := make(map[int64]bool, res.Sent)
	for _, m := range res.Messages {
		if m.Err == nil {
			delivered[m.StudentID] = true
		}
	}
	for id, key := range claimed {
		if delivered[id] {
			continue
		}
		// ctx пачки мог быть отменён
		relCtx, cancel := ctxutil.WithDBTimeout(context.WithoutCancel(ctx))
		if err := e.opts.Deduper.Release(relCtx, key); err != nil {
			e.log.Warn("dedup release failed", zap.String("key", key), zap.Error(err))
		}
		cancel()
	}
	return res
}
