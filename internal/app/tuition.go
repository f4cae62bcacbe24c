package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/models"
	"github.com/Spok95/edu-center-bot/internal/tuition"
)

// Debts — долги по каждой активной записи на asOf; только ненулевые.
func (e *Engine) Debts(ctx context.Context, asOf time.Time) ([]tuition.Debt, error) {
	if err := authorize(ctx, "tuition.debts", models.Role.CanManagePayments); err != nil {
		return nil, err
	}
	return e.debts(ctx, asOf)
}

func (e *Engine) debts(ctx context.Context, asOf time.Time) ([]tuition.Debt, error) {
	dbCtx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	enrollments, err := e.store.ListActiveEnrollments(dbCtx)
	if err != nil {
		return nil, apperr.Provider("tuition.enrollments", "active", err)
	}
	if len(enrollments) == 0 {
		return nil, nil
	}
	// только классы, на которые кто-то записан
	seen := make(map[int64]bool)
	var ids []int64
	for _, en := range enrollments {
		if !seen[en.ClassID] {
			seen[en.ClassID] = true
			ids = append(ids, en.ClassID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	classes, err := e.store.ListClassesByIDs(dbCtx, ids)
	if err != nil {
		return nil, apperr.Provider("tuition.classes", fmt.Sprintf("ids=%v", ids), err)
	}
	payments, err := e.store.GetPayments(dbCtx, nil)
	if err != nil {
		return nil, apperr.Provider("tuition.payments", "all", err)
	}

	byID := make(map[int64]models.ClassSection, len(classes))
	for _, c := range classes {
		if c.Periods <= 0 {
			c.Periods = e.opts.Periods
		}
		byID[c.ID] = c
	}
	return e.opts.Amortizer.Debts(enrollments, byID, payments, asOf.In(e.opts.Location)), nil
}

// UnpaidReport — долги, свёрнутые по ученикам. Пустой список — не ошибка.
func (e *Engine) UnpaidReport(ctx context.Context, asOf time.Time) ([]tuition.StudentTotal, error) {
	if err := authorize(ctx, "tuition.unpaid", models.Role.CanManagePayments); err != nil {
		return nil, err
	}
	return e.unpaid(ctx, asOf)
}

// unpaid без проверки прав: им пользуются напоминания, у которых своя проверка.
func (e *Engine) unpaid(ctx context.Context, asOf time.Time) ([]tuition.StudentTotal, error) {
	debts, err := e.debts(ctx, asOf)
	if err != nil {
		return nil, err
	}
	return tuition.Summarize(debts), nil
}

func (e *Engine) CreatePayment(ctx context.Context, in tuition.PaymentInput) (models.Payment, error) {
	if err := authorize(ctx, "payment.create", models.Role.CanManagePayments); err != nil {
		return models.Payment{}, err
	}
	return e.payments.Create(ctx, in)
}

func (e *Engine) UpdatePayment(ctx context.Context, id int64, in tuition.PaymentInput) (models.Payment, error) {
	if err := authorize(ctx, "payment.update", models.Role.CanManagePayments); err != nil {
		return models.Payment{}, err
	}
	return e.payments.Update(ctx, id, in)
}

func (e *Engine) Payments(ctx context.Context, studentID *int64) ([]models.Payment, error) {
	if err := authorize(ctx, "payment.list", models.Role.CanManagePayments); err != nil {
		return nil, err
	}
	return e.payments.List(ctx, studentID)
}
