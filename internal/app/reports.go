package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/models"
	"github.com/Spok95/edu-center-bot/internal/report"
)

// ReportQuery — период [From, To), шаг и необязательный класс.
type ReportQuery struct {
	From        time.Time
	To          time.Time
	Granularity report.Granularity
	ClassID     int64 // 0 — все классы
	ByClass     bool
}

func (q ReportQuery) check() error {
	if q.From.IsZero() || q.To.IsZero() {
		return apperr.Invalid("period", "from and to are required")
	}
	if !q.From.Before(q.To) {
		return apperr.Invalid("period", "from must be before to")
	}
	return nil
}

func (q ReportQuery) aggregate(events []report.Event) []report.Bucket {
	if q.ByClass {
		return report.AggregateBy(events, q.Granularity, report.ByClass)
	}
	return report.Aggregate(events, q.Granularity)
}

func (q ReportQuery) key() string {
	return fmt.Sprintf("class=%d from=%s to=%s", q.ClassID, q.From.Format("2006-01-02"), q.To.Format("2006-01-02"))
}

// AttendanceReport — посещаемость по периодам.
func (e *Engine) AttendanceReport(ctx context.Context, q ReportQuery) ([]report.Bucket, error) {
	if err := authorize(ctx, "report.attendance", models.Role.CanTakeAttendance); err != nil {
		return nil, err
	}
	if err := q.check(); err != nil {
		return nil, err
	}
	dbCtx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	recs, err := e.store.ListAttendance(dbCtx, q.ClassID, q.From, q.To, e.opts.Location)
	if err != nil {
		return nil, apperr.Provider("report.attendance", q.key(), err)
	}
	names, err := e.classNames(dbCtx)
	if err != nil {
		return nil, apperr.Provider("report.classes", q.key(), err)
	}

	byClass := make(map[int64][]models.AttendanceRecord)
	for _, r := range recs {
		byClass[r.ClassID] = append(byClass[r.ClassID], r)
	}
	var events []report.Event
	for classID, rs := range byClass {
		events = append(events, report.AttendanceEvents(rs, names[classID])...)
	}
	return q.aggregate(events), nil
}

// FinanceReport — поступления (только завершённые платежи) и новые записи по периодам.
func (e *Engine) FinanceReport(ctx context.Context, q ReportQuery) ([]report.Bucket, error) {
	if err := authorize(ctx, "report.finance", models.Role.CanManagePayments); err != nil {
		return nil, err
	}
	if err := q.check(); err != nil {
		return nil, err
	}
	dbCtx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	payments, err := e.store.ListPayments(dbCtx, q.From, q.To)
	if err != nil {
		return nil, apperr.Provider("report.payments", q.key(), err)
	}
	enrollments, err := e.store.ListEnrollments(dbCtx, q.From, q.To)
	if err != nil {
		return nil, apperr.Provider("report.enrollments", q.key(), err)
	}
	names, err := e.classNames(dbCtx)
	if err != nil {
		return nil, apperr.Provider("report.classes", q.key(), err)
	}

	events := append(report.PaymentEvents(payments), report.EnrollmentEvents(enrollments)...)
	kept := events[:0]
	for _, ev := range events {
		if q.ClassID != 0 && ev.ClassID != q.ClassID {
			continue
		}
		ev.At = ev.At.In(e.opts.Location)
		ev.ClassName = names[ev.ClassID]
		kept = append(kept, ev)
	}
	return q.aggregate(kept), nil
}

func (e *Engine) classNames(ctx context.Context) (map[int64]string, error) {
	classes, err := e.store.ListClasses(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(classes))
	for _, c := range classes {
		out[c.ID] = c.Name
	}
	return out, nil
}
