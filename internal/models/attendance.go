package models

import "time"

// AttendanceState — три явных состояния вместо nullable bool.
type AttendanceState int

const (
	Unmarked AttendanceState = iota
	Present
	Absent
)

func (s AttendanceState) String() string {
	switch s {
	case Present:
		return "present"
	case Absent:
		return "absent"
	default:
		return "unmarked"
	}
}

// Next — переход для ручного переключения: Unmarked→Present→Absent→Present…
func (s AttendanceState) Next() AttendanceState {
	if s == Present {
		return Absent
	}
	return Present
}

// StateFromStored переводит хранимое булево значение в состояние.
func StateFromStored(present bool) AttendanceState {
	if present {
		return Present
	}
	return Absent
}

type AttendanceRecord struct {
	StudentID   int64
	StudentName string
	ClassID     int64
	Date        time.Time
	State       AttendanceState
	Note        string
	Saved       bool
	// Rev — ревизия записи в ledger; растёт при каждом изменении.
	Rev uint64
}

// SessionDate обрезает момент до календарной даты в его же зоне.
func SessionDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
