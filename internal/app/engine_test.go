package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/models"
	"github.com/Spok95/edu-center-bot/internal/report"
	"github.com/Spok95/edu-center-bot/internal/tuition"
)

var ict = time.FixedZone("ICT", 7*3600)

func fixture() (*Engine, *memStore, *memChannel) {
	s := newMemStore()
	s.classes[1] = models.ClassSection{ID: 1, Name: "Toán 9A", Fee: 4_000_000, Periods: 4, IsActive: true}
	s.classes[2] = models.ClassSection{ID: 2, Name: "Anh 6", Fee: 2_000_000, IsActive: true}
	s.addStudent(1, "An", "HS1", "101")
	s.addStudent(2, "Bình", "HS2", "")
	s.addStudent(3, "Chi", "HS3", "103")
	s.addStudent(4, "Dũng", "HS4", "104")
	for _, id := range []int64{1, 2, 3} {
		s.enroll(id, 1, time.Date(2024, 1, 10, 0, 0, 0, 0, ict))
	}
	s.enroll(4, 2, time.Date(2024, 3, 1, 0, 0, 0, 0, ict))

	ch := newMemChannel()
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, ict)
	e := NewEngine(s, ch, Options{
		SaveWorkers:     2,
		DispatchWorkers: 2,
		GraceDays:       7,
		Location:        ict,
		Now:             func() time.Time { return now },
	}, nil)
	return e, s, ch
}

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, ict) }

func TestSession_OpenCheckinToggleSave(t *testing.T) {
	e, s, _ := fixture()
	ctx := context.Background()

	l, err := e.OpenSession(ctx, 1, day(15).Add(14*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 3 || l.Counts().Unmarked != 3 {
		t.Fatalf("новая сессия: %+v", l.Counts())
	}
	if again, _ := e.OpenSession(ctx, 1, day(15)); again != l {
		t.Fatal("повторное открытие должно вернуть ту же сессию")
	}

	if id, err := e.CheckIn(ctx, 1, day(15), " HS1\n"); err != nil || id != 1 {
		t.Fatalf("скан HS1: %d %v", id, err)
	}
	if _, err := e.CheckIn(ctx, 1, day(15), "HS4"); !errors.Is(err, apperr.ErrNotInRoster) {
		t.Fatalf("чужой класс: %v", err)
	}
	if _, err := e.CheckIn(ctx, 1, day(15), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("неизвестный код: %v", err)
	}
	var ve *apperr.ValidationError
	if _, err := e.CheckIn(ctx, 1, day(15), "   "); !errors.As(err, &ve) {
		t.Fatalf("пустой код: %v", err)
	}

	for _, want := range []models.AttendanceState{models.Present, models.Absent} {
		st, err := e.Toggle(ctx, 1, day(15), 2)
		if err != nil || st != want {
			t.Fatalf("toggle: %v %v, ожидали %v", st, err, want)
		}
	}
	if err := e.SetNote(ctx, 1, day(15), 2, "ốm"); err != nil {
		t.Fatal(err)
	}

	saved, err := e.SaveSession(ctx, 1, day(15))
	if err != nil || saved != 2 {
		t.Fatalf("saved=%d err=%v", saved, err)
	}
	if s.saves != 2 {
		t.Fatalf("Unmarked не пишется: %d записей", s.saves)
	}

	if lost, err := e.CloseSession(ctx, 1, day(15)); err != nil || lost != 0 {
		t.Fatalf("всё сохранено, потеряно %d", lost)
	}
	reopened, err := e.OpenSession(ctx, 1, day(15))
	if err != nil {
		t.Fatal(err)
	}
	r, _ := reopened.Record(2)
	if r.State != models.Absent || r.Note != "ốm" || !r.Saved {
		t.Fatalf("после переоткрытия: %+v", r)
	}
	if c := reopened.Counts(); c.Present != 1 || c.Absent != 1 || c.Unmarked != 1 {
		t.Fatalf("%+v", c)
	}
}

func TestSession_Errors(t *testing.T) {
	e, _, _ := fixture()
	ctx := context.Background()

	if _, err := e.CheckIn(ctx, 1, day(15), "HS1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("сессия не открыта: %v", err)
	}
	if _, err := e.OpenSession(ctx, 99, day(15)); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("нет класса: %v", err)
	}
	if _, err := e.OpenSession(ctx, 1, day(15)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Toggle(ctx, 1, day(15), 4); !errors.Is(err, apperr.ErrNotInRoster) {
		t.Fatalf("ученик вне ростера: %v", err)
	}
}

func TestSession_PartialSaveFailure(t *testing.T) {
	e, s, _ := fixture()
	ctx := context.Background()
	s.failSave[3] = true

	if _, err := e.OpenSession(ctx, 1, day(15)); err != nil {
		t.Fatal(err)
	}
	_ = e.MarkAllPresent(ctx, 1, day(15))
	saved, err := e.SaveSession(ctx, 1, day(15))
	if saved != 2 || !apperr.IsProvider(err) {
		t.Fatalf("saved=%d err=%v", saved, err)
	}
	l, _ := e.Session(ctx, 1, day(15))
	pending := l.PendingChanges()
	if len(pending) != 1 || pending[0].StudentID != 3 {
		t.Fatalf("несохранённой должна остаться только запись Chi: %+v", pending)
	}
	if lost, err := e.CloseSession(ctx, 1, day(15)); err != nil || lost != 1 {
		t.Fatalf("потеряно %d", lost)
	}
}

func TestAuthorize(t *testing.T) {
	e, _, _ := fixture()
	as := func(r models.Role) context.Context {
		return ctxutil.WithOperator(context.Background(), models.User{ID: 1, Role: r})
	}

	if _, err := e.OpenSession(as(models.RoleStudent), 1, day(15)); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("ученик не открывает сессию: %v", err)
	}
	if _, err := e.OpenSession(as(models.RoleTeacher), 1, day(15)); err != nil {
		t.Fatal(err)
	}
	in := tuition.PaymentInput{StudentID: 1, ClassID: 1, Amount: 1_000_000, Method: models.MethodCash}
	if _, err := e.CreatePayment(as(models.RoleTeacher), in); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("учитель не принимает оплату: %v", err)
	}
	if _, err := e.CreatePayment(as(models.RoleAdmin), in); err != nil {
		t.Fatal(err)
	}
	if _, err := e.NotifyTuitionDue(as(models.RoleStudent), day(15), ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("%v", err)
	}

	student := as(models.RoleStudent)
	if _, err := e.UnpaidReport(student, day(15)); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("ученик не видит чужие долги: %v", err)
	}
	if _, err := e.Debts(student, day(15)); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("%v", err)
	}
	if _, err := e.Session(student, 1, day(15)); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("%v", err)
	}
	if _, err := e.CloseSession(student, 1, day(15)); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("ученик не закрывает сессию: %v", err)
	}
	if _, err := e.Session(as(models.RoleTeacher), 1, day(15)); err != nil {
		t.Fatalf("сессия учителя должна остаться открытой: %v", err)
	}
	// учитель рассылает напоминания, хотя отчёт по долгам ему закрыт
	if _, err := e.UnpaidReport(as(models.RoleTeacher), day(15)); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("%v", err)
	}
	if _, err := e.NotifyTuitionDue(as(models.RoleTeacher), day(15), ""); err != nil {
		t.Fatal(err)
	}
}

func TestNotifyAbsences(t *testing.T) {
	e, _, ch := fixture()
	ctx := context.Background()

	if _, err := e.OpenSession(ctx, 1, day(15)); err != nil {
		t.Fatal(err)
	}
	_ = e.MarkAllPresent(ctx, 1, day(15))
	if res, err := e.NotifyAbsences(ctx, 1, day(15), ""); err != nil || res.Total() != 0 {
		t.Fatalf("нет отсутствующих — пустой результат: %+v %v", res, err)
	}

	_, _ = e.Toggle(ctx, 1, day(15), 2)
	_, _ = e.Toggle(ctx, 1, day(15), 3)
	res, err := e.NotifyAbsences(ctx, 1, day(15), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 1 || res.Failed != 1 || res.Failures[0].StudentID != 2 || res.Failures[0].Reason != "NoContact" {
		t.Fatalf("%+v", res)
	}
	msg := ch.sent["103"][0]
	for _, part := range []string{"Chi", "Toán 9A", "15/03/2024"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("в тексте нет %q: %s", part, msg)
		}
	}

	again, err := e.NotifyAbsences(ctx, 1, day(15), "[tên học sinh] vắng")
	if err != nil {
		t.Fatal(err)
	}
	if again.Deduplicated != 1 || again.Sent != 0 || ch.count() != 1 {
		t.Fatalf("повтор в тот же день не отправляется: %+v", again)
	}
}

func TestNotifyAbsences_FromSavedHistory(t *testing.T) {
	e, s, ch := fixture()
	ctx := context.Background()
	_ = s.SaveAttendance(ctx, models.AttendanceRecord{ClassID: 1, StudentID: 1, Date: day(14), State: models.Absent})

	res, err := e.NotifyAbsences(ctx, 1, day(14), "")
	if err != nil || res.Sent != 1 || len(ch.sent["101"]) != 1 {
		t.Fatalf("без открытой сессии берутся сохранённые отметки: %+v %v", res, err)
	}
}

func TestNotifyAbsences_TwoClassesSameDay(t *testing.T) {
	e, s, ch := fixture()
	ctx := context.Background()
	s.enroll(1, 2, time.Date(2024, 3, 1, 0, 0, 0, 0, ict))
	for _, classID := range []int64{1, 2} {
		_ = s.SaveAttendance(ctx, models.AttendanceRecord{ClassID: classID, StudentID: 1, Date: day(15), State: models.Absent})
	}

	for _, classID := range []int64{1, 2} {
		res, err := e.NotifyAbsences(ctx, classID, day(15), "")
		if err != nil || res.Sent != 1 || res.Deduplicated != 0 {
			t.Fatalf("класс %d: %+v %v", classID, res, err)
		}
	}
	if len(ch.sent["101"]) != 2 {
		t.Fatalf("по уведомлению на каждый класс, получили %d", len(ch.sent["101"]))
	}
}

func TestNotifyTuitionDue(t *testing.T) {
	e, _, ch := fixture()
	ch.fail["103"] = true
	ctx := context.Background()
	asOf := time.Date(2024, 3, 15, 9, 0, 0, 0, ict)

	totals, err := e.UnpaidReport(ctx, asOf)
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 4 || totals[0].AmountDue != 3_000_000 || totals[3].AmountDue != 500_000 {
		t.Fatalf("%+v", totals)
	}

	res, err := e.NotifyTuitionDue(ctx, asOf, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 2 || res.Failed != 2 || res.Total() != 4 {
		t.Fatalf("%+v", res)
	}
	msg := ch.sent["101"][0]
	for _, part := range []string{"An", "3.000.000 đ", "(3 tháng)", "22/03/2024"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("в тексте нет %q: %s", part, msg)
		}
	}

	// повтор в тот же день: доставленные отсекаются, неудачная отправка повторяется
	ch.fail["103"] = false
	again, err := e.NotifyTuitionDue(ctx, asOf.Add(2*time.Hour), "")
	if err != nil {
		t.Fatal(err)
	}
	if again.Deduplicated != 2 || again.Sent != 1 || again.Failed != 1 || len(ch.sent["103"]) != 1 {
		t.Fatalf("%+v", again)
	}
}

func TestNotifyTuitionDue_NoDebtors(t *testing.T) {
	e, s, _ := fixture()
	s.enrollments = nil
	res, err := e.NotifyTuitionDue(context.Background(), day(15), "")
	if err != nil || res.Total() != 0 || res.Failures != nil {
		t.Fatalf("%+v %v", res, err)
	}
	totals, err := e.UnpaidReport(context.Background(), day(15))
	if err != nil || len(totals) != 0 {
		t.Fatalf("%+v %v", totals, err)
	}
}

func TestDebts_LinkedPeriods(t *testing.T) {
	e, s, _ := fixture()
	e.opts.Amortizer = tuition.Amortizer{Paid: tuition.CountLinkedPeriods}
	one, two := 1, 2
	s.payments = []models.Payment{
		{StudentID: 1, ClassID: 1, Amount: 1_000_000, Status: models.PaymentCompleted, PeriodNo: &one},
		{StudentID: 1, ClassID: 1, Amount: 1_000_000, Status: models.PaymentCancelled, PeriodNo: &two},
	}
	debts, err := e.Debts(context.Background(), day(15))
	if err != nil {
		t.Fatal(err)
	}
	if debts[0].StudentID != 1 || debts[0].Status.PeriodsPaid != 1 || debts[0].Status.AmountDue != 2_000_000 {
		t.Fatalf("%+v", debts[0])
	}
	// класс без своего числа периодов берёт значение по умолчанию
	last := debts[len(debts)-1]
	if last.ClassID != 2 || last.Status.MonthlyShare != 500_000 {
		t.Fatalf("%+v", last)
	}
}

func TestDebts_LoadsOnlyEnrolledClasses(t *testing.T) {
	e, s, _ := fixture()
	s.classes[3] = models.ClassSection{ID: 3, Name: "Lý 8", Fee: 3_000_000, IsActive: true}
	debts, err := e.Debts(context.Background(), day(15))
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(s.classIDsAsked) != "[1 2]" {
		t.Fatalf("запрошены классы %v", s.classIDsAsked)
	}
	for _, d := range debts {
		if d.ClassID == 3 {
			t.Fatalf("долг по классу без записей: %+v", d)
		}
	}
}

func TestReports(t *testing.T) {
	e, s, _ := fixture()
	ctx := context.Background()
	for _, d := range []int{11, 12, 18} {
		_ = s.SaveAttendance(ctx, models.AttendanceRecord{ClassID: 1, StudentID: 1, Date: day(d), State: models.Present})
		_ = s.SaveAttendance(ctx, models.AttendanceRecord{ClassID: 1, StudentID: 2, Date: day(d), State: models.Absent})
	}
	s.payments = []models.Payment{
		{StudentID: 1, ClassID: 1, Amount: 1_000_000, Method: models.MethodCash, Status: models.PaymentCompleted, PaidAt: day(12)},
		{StudentID: 4, ClassID: 2, Amount: 500_000, Method: models.MethodTransfer, Status: models.PaymentCompleted, PaidAt: day(13)},
	}

	q := ReportQuery{From: day(1), To: day(31), Granularity: report.Week}
	att, err := e.AttendanceReport(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(att) != 2 || att[0].Label != "Tuần 11 - 2024" || att[0].Present != 2 || att[0].Absent != 2 {
		t.Fatalf("%+v", att)
	}

	q.Granularity, q.ByClass = report.Month, true
	fin, err := e.FinanceReport(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(fin) != 2 || fin[0].Group != "Anh 6" || fin[0].TransferAmount != 500_000 || fin[1].CashAmount != 1_000_000 {
		t.Fatalf("%+v", fin)
	}
	if fin[0].Enrollments != 1 {
		t.Fatalf("запись Dũng 01.03 попадает в март: %+v", fin[0])
	}

	var ve *apperr.ValidationError
	if _, err := e.AttendanceReport(ctx, ReportQuery{From: day(5), To: day(5)}); !errors.As(err, &ve) {
		t.Fatalf("пустой период: %v", err)
	}
}
