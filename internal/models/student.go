package models

import "time"

// Student — ученик центра. GuardianContact — chat id / телефон родителя, может быть пустым.
type Student struct {
	ID              int64  `db:"id"`
	Name            string `db:"name"`
	Code            string `db:"code"`
	GuardianContact string `db:"guardian_contact"`
}

func (s Student) HasContact() bool { return s.GuardianContact != "" }

// DefaultPeriods — на сколько месяцев раскладывается оплата курса.
const DefaultPeriods = 4

type ClassSection struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Fee       int64     `db:"fee"`
	Periods   int       `db:"periods"`
	IsActive  bool      `db:"is_active"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
}

// BillingPeriods возвращает число периодов оплаты, подставляя значение по умолчанию.
func (c ClassSection) BillingPeriods() int {
	if c.Periods <= 0 {
		return DefaultPeriods
	}
	return c.Periods
}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentWithdrawn EnrollmentStatus = "withdrawn"
)

type Enrollment struct {
	ID         int64            `db:"id"`
	StudentID  int64            `db:"student_id"`
	ClassID    int64            `db:"class_id"`
	EnrolledAt time.Time        `db:"enrolled_at"`
	Status     EnrollmentStatus `db:"status"`

	// заполняются джойном, когда провайдер их знает
	StudentName     string `db:"student_name"`
	GuardianContact string `db:"guardian_contact"`
}
