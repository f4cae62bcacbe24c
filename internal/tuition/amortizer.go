// Package tuition — расчёт задолженности по оплате курса и операции с платежами.
package tuition

import (
	"sort"
	"time"

	"github.com/Spok95/edu-center-bot/internal/models"
)

// Status — снимок задолженности по одной записи на курс.
type Status struct {
	MonthlyShare   int64
	PeriodsElapsed int
	PeriodsPaid    int
	PeriodsUnpaid  int
	AmountDue      int64
}

// PaidCounter определяет, сколько периодов уже закрыто платежами.
type PaidCounter func(payments []models.Payment, periods int) int

// InferNone — без привязки платежей к периодам считаем, что оплачено 0 периодов.
func InferNone([]models.Payment, int) int { return 0 }

// CountLinkedPeriods — число различных периодов, закрытых завершёнными платежами с PeriodNo.
func CountLinkedPeriods(payments []models.Payment, periods int) int {
	seen := make(map[int]struct{})
	for _, p := range payments {
		if p.Status != models.PaymentCompleted || p.PeriodNo == nil {
			continue
		}
		if n := *p.PeriodNo; n >= 1 && n <= periods {
			seen[n] = struct{}{}
		}
	}
	return len(seen)
}

// Amortizer — чистый расчёт, без побочных эффектов.
type Amortizer struct {
	Paid PaidCounter
}

// ComputeDue — расчёт стратегией по умолчанию (InferNone).
func ComputeDue(e models.Enrollment, fee int64, periods int, payments []models.Payment, asOf time.Time) Status {
	return Amortizer{}.ComputeDue(e, fee, periods, payments, asOf)
}

func (a Amortizer) ComputeDue(e models.Enrollment, fee int64, periods int, payments []models.Payment, asOf time.Time) Status {
	if periods <= 0 {
		periods = models.DefaultPeriods
	}
	paid := a.Paid
	if paid == nil {
		paid = InferNone
	}

	st := Status{MonthlyShare: fee / int64(periods)}
	st.PeriodsElapsed = clamp(MonthsBetween(e.EnrolledAt, asOf)+1, 1, periods)
	st.PeriodsPaid = clamp(paid(payments, periods), 0, periods)
	st.PeriodsUnpaid = clamp(st.PeriodsElapsed-st.PeriodsPaid, 0, periods)
	st.AmountDue = st.MonthlyShare * int64(st.PeriodsUnpaid)
	return st
}

// MonthsBetween — число полных месяцев от from до to (отрицательное, если to раньше from).
// 10.01 → 15.03 = 2; 10.01 → 09.03 = 1. Даты сравниваются как календарные, каждая в своей
// зоне: DATE из БД приходит полночью UTC, asOf — в зоне центра.
func MonthsBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	months := (ty-fy)*12 + int(tm-fm)
	if months > 0 && td < fd {
		months--
	} else if months < 0 && td > fd {
		months++
	}
	return months
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Debt — задолженность ученика по одному классу.
type Debt struct {
	StudentID       int64
	StudentName     string
	GuardianContact string
	ClassID         int64
	ClassName       string
	Status          Status
}

// Debts считает задолженности по активным записям; в результат попадают только долги > 0.
// Порядок: по ученику, затем по классу.
func (a Amortizer) Debts(enrollments []models.Enrollment, classes map[int64]models.ClassSection, payments []models.Payment, asOf time.Time) []Debt {
	type key struct{ student, class int64 }
	byKey := make(map[key][]models.Payment)
	for _, p := range payments {
		k := key{p.StudentID, p.ClassID}
		byKey[k] = append(byKey[k], p)
	}

	var out []Debt
	for _, e := range enrollments {
		if e.Status != "" && e.Status != models.EnrollmentActive {
			continue
		}
		class, ok := classes[e.ClassID]
		if !ok {
			continue
		}
		st := a.ComputeDue(e, class.Fee, class.BillingPeriods(), byKey[key{e.StudentID, e.ClassID}], asOf)
		if st.AmountDue <= 0 {
			continue
		}
		out = append(out, Debt{
			StudentID:       e.StudentID,
			StudentName:     e.StudentName,
			GuardianContact: e.GuardianContact,
			ClassID:         e.ClassID,
			ClassName:       class.Name,
			Status:          st,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].ClassID < out[j].ClassID
	})
	return out
}

// StudentTotal — сумма долга ученика по всем классам.
type StudentTotal struct {
	StudentID       int64    `json:"student_id"`
	StudentName     string   `json:"student_name"`
	GuardianContact string   `json:"-"`
	AmountDue       int64    `json:"amount_due"`
	PeriodsUnpaid   int      `json:"periods_unpaid"`
	Classes         []string `json:"classes"`
}

// Summarize сворачивает долги по ученикам, сохраняя порядок первого появления.
func Summarize(debts []Debt) []StudentTotal {
	idx := make(map[int64]int)
	var out []StudentTotal
	for _, d := range debts {
		i, ok := idx[d.StudentID]
		if !ok {
			i = len(out)
			idx[d.StudentID] = i
			out = append(out, StudentTotal{
				StudentID:       d.StudentID,
				StudentName:     d.StudentName,
				GuardianContact: d.GuardianContact,
			})
		}
		out[i].AmountDue += d.Status.AmountDue
		out[i].PeriodsUnpaid += d.Status.PeriodsUnpaid
		out[i].Classes = append(out[i].Classes, d.ClassName)
	}
	return out
}
