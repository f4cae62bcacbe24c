// Package report — группировка событий посещаемости, оплат и записей по периодам.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Spok95/edu-center-bot/internal/models"
)

type Granularity int

const (
	Day Granularity = iota
	Week
	Month
)

func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	}
	return Day, fmt.Errorf("unknown granularity %q", s)
}

func (g Granularity) String() string {
	switch g {
	case Week:
		return "week"
	case Month:
		return "month"
	default:
		return "day"
	}
}

type EventKind int

const (
	EventAttendance EventKind = iota
	EventPayment
	EventEnrollment
)

type Event struct {
	At        time.Time
	Kind      EventKind
	StudentID int64
	ClassID   int64
	ClassName string

	Present bool // EventAttendance

	Amount int64 // EventPayment
	Method models.PaymentMethod
	Status models.PaymentStatus
}

// Bucket — агрегированные счётчики за период. Пересчитывается заново, не мутируется.
type Bucket struct {
	Start          time.Time `json:"start"`
	Label          string    `json:"label"`
	Group          string    `json:"group,omitempty"`
	Present        int       `json:"present"`
	Absent         int       `json:"absent"`
	CashAmount     int64     `json:"cash_amount"`
	TransferAmount int64     `json:"transfer_amount"`
	Enrollments    int       `json:"enrollments"`
}

func (b Bucket) Collected() int64 { return b.CashAmount + b.TransferAmount }

// BucketStart — начало периода, в который попадает t (в зоне t).
// Неделя — ISO: с понедельника.
func BucketStart(t time.Time, g Granularity) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch g {
	case Week:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// Label — подпись периода. Для сортировки не используется.
func Label(start time.Time, g Granularity) string {
	switch g {
	case Week:
		y, w := start.ISOWeek()
		return fmt.Sprintf("Tuần %d - %d", w, y)
	case Month:
		return fmt.Sprintf("Tháng %d - %d", int(start.Month()), start.Year())
	default:
		return start.Format("02/01/2006")
	}
}

// Aggregate раскладывает события по периодам; результат отсортирован по началу периода.
func Aggregate(events []Event, g Granularity) []Bucket {
	return AggregateBy(events, g, nil)
}

// AggregateBy — то же с дополнительным измерением (например, класс).
// Сортировка: начало периода, затем группа.
func AggregateBy(events []Event, g Granularity, group func(Event) string) []Bucket {
	type key struct {
		start int64
		group string
	}
	idx := make(map[key]int)
	out := make([]Bucket, 0)

	for _, e := range events {
		if e.Kind == EventPayment && e.Status != "" && e.Status != models.PaymentCompleted {
			continue
		}
		start := BucketStart(e.At, g)
		k := key{start: start.UnixNano()}
		if group != nil {
			k.group = group(e)
		}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Bucket{Start: start, Label: Label(start, g), Group: k.group})
		}
		b := &out[i]
		switch e.Kind {
		case EventAttendance:
			if e.Present {
				b.Present++
			} else {
				b.Absent++
			}
		case EventPayment:
			if e.Method == models.MethodTransfer {
				b.TransferAmount += e.Amount
			} else {
				b.CashAmount += e.Amount
			}
		case EventEnrollment:
			b.Enrollments++
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Group < out[j].Group
	})
	return out
}

// ByClass — группировка по названию класса (или id, если названия нет).
func ByClass(e Event) string {
	if e.ClassName != "" {
		return e.ClassName
	}
	return fmt.Sprintf("#%d", e.ClassID)
}

// AttendanceEvents — события из записей посещаемости; Unmarked пропускаются.
func AttendanceEvents(records []models.AttendanceRecord, className string) []Event {
	out := make([]Event, 0, len(records))
	for _, r := range records {
		if r.State == models.Unmarked {
			continue
		}
		out = append(out, Event{
			At:        r.Date,
			Kind:      EventAttendance,
			StudentID: r.StudentID,
			ClassID:   r.ClassID,
			ClassName: className,
			Present:   r.State == models.Present,
		})
	}
	return out
}

func PaymentEvents(payments []models.Payment) []Event {
	out := make([]Event, 0, len(payments))
	for _, p := range payments {
		out = append(out, Event{
			At:        p.PaidAt,
			Kind:      EventPayment,
			StudentID: p.StudentID,
			ClassID:   p.ClassID,
			Amount:    p.Amount,
			Method:    p.Method,
			Status:    p.Status,
		})
	}
	return out
}

func EnrollmentEvents(enrollments []models.Enrollment) []Event {
	out := make([]Event, 0, len(enrollments))
	for _, e := range enrollments {
		out = append(out, Event{
			At:        e.EnrolledAt,
			Kind:      EventEnrollment,
			StudentID: e.StudentID,
			ClassID:   e.ClassID,
		})
	}
	return out
}
