package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/edu-center-bot/internal/models"
)

func at(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 10, 0, 0, 0, time.UTC) }

func TestAggregate_WeekAcrossYearBoundary(t *testing.T) {
	events := []Event{
		{At: at(2025, 1, 6), Kind: EventAttendance, Present: true}, // неделя 2 / 2025
		{At: at(2024, 3, 4), Kind: EventAttendance, Present: true}, // неделя 10 / 2024
		{At: at(2024, 12, 30), Kind: EventAttendance},              // ISO неделя 1 / 2025
		{At: at(2024, 3, 6), Kind: EventAttendance},                // неделя 10 / 2024
	}
	got := Aggregate(events, Week)
	if len(got) != 3 {
		t.Fatalf("ожидали 3 недели, получили %d: %+v", len(got), got)
	}
	wantLabels := []string{"Tuần 10 - 2024", "Tuần 1 - 2025", "Tuần 2 - 2025"}
	for i, b := range got {
		if b.Label != wantLabels[i] {
			t.Fatalf("позиция %d: %q, ожидали %q", i, b.Label, wantLabels[i])
		}
		if i > 0 && !got[i-1].Start.Before(b.Start) {
			t.Fatal("периоды должны идти по возрастанию начала")
		}
	}
	if got[0].Present != 1 || got[0].Absent != 1 {
		t.Fatalf("неверные счётчики: %+v", got[0])
	}
	if got[1].Start.Weekday() != time.Monday || got[1].Start.Year() != 2024 {
		t.Fatalf("неделя начинается с понедельника 30.12.2024: %v", got[1].Start)
	}
}

func TestAggregate_MonthAndPayments(t *testing.T) {
	pays := []models.Payment{
		{PaidAt: at(2024, 12, 5), Amount: 1_000_000, Method: models.MethodCash, Status: models.PaymentCompleted},
		{PaidAt: at(2024, 2, 5), Amount: 500_000, Method: models.MethodTransfer, Status: models.PaymentCompleted},
		{PaidAt: at(2024, 2, 20), Amount: 700_000, Method: models.MethodCash, Status: models.PaymentCompleted},
		{PaidAt: at(2024, 2, 21), Amount: 900_000, Method: models.MethodCash, Status: models.PaymentCancelled},
	}
	events := append(PaymentEvents(pays), EnrollmentEvents([]models.Enrollment{{EnrolledAt: at(2024, 2, 1)}})...)
	got := Aggregate(events, Month)
	if len(got) != 2 || got[0].Label != "Tháng 2 - 2024" || got[1].Label != "Tháng 12 - 2024" {
		t.Fatalf("месяцы в хронологическом порядке, получили %+v", got)
	}
	if got[0].CashAmount != 700_000 || got[0].TransferAmount != 500_000 || got[0].Collected() != 1_200_000 {
		t.Fatalf("отменённый платёж не учитывается: %+v", got[0])
	}
	if got[0].Enrollments != 1 {
		t.Fatalf("ожидали 1 запись на курс: %+v", got[0])
	}
}

func TestAggregateBy_Class(t *testing.T) {
	recsA := []models.AttendanceRecord{
		{StudentID: 1, ClassID: 1, Date: at(2024, 3, 1), State: models.Present},
		{StudentID: 2, ClassID: 1, Date: at(2024, 3, 1), State: models.Unmarked},
	}
	recsB := []models.AttendanceRecord{
		{StudentID: 3, ClassID: 2, Date: at(2024, 3, 1), State: models.Absent},
	}
	events := append(AttendanceEvents(recsB, "Toán"), AttendanceEvents(recsA, "Anh")...)
	got := AggregateBy(events, Day, ByClass)
	if len(got) != 2 || got[0].Group != "Anh" || got[1].Group != "Toán" {
		t.Fatalf("%+v", got)
	}
	if got[0].Present != 1 || got[0].Absent != 0 || got[1].Absent != 1 {
		t.Fatalf("Unmarked не считается: %+v", got)
	}
	if got[0].Label != "01/03/2024" {
		t.Fatalf("подпись дня %q", got[0].Label)
	}
}

func TestParseGranularity(t *testing.T) {
	for in, want := range map[string]Granularity{"": Day, "Week": Week, " month ": Month} {
		g, err := ParseGranularity(in)
		if err != nil || g != want {
			t.Fatalf("%q: %v %v", in, g, err)
		}
	}
	if _, err := ParseGranularity("year"); err == nil {
		t.Fatal("ожидали ошибку")
	}
}

func TestExportXLSX(t *testing.T) {
	buckets := []Bucket{{Label: "Tháng 2 - 2024", Present: 3, Absent: 1, CashAmount: 700_000, TransferAmount: 500_000}}
	var buf bytes.Buffer
	if err := ExportXLSX(&buf, "Báo cáo: tháng", buckets); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	sheet := "Báo cáo_ tháng"
	if v, _ := f.GetCellValue(sheet, "A1"); v != "Kỳ" {
		t.Fatalf("A1=%q", v)
	}
	if v, _ := f.GetCellValue(sheet, "G2"); v != "1200000" {
		t.Fatalf("G2=%q, ожидали 1200000", v)
	}
}
