package attendance

import (
	"fmt"
	"sync"
	"time"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/models"
)

// Ledger — рабочий набор записей одной сессии. Набор учеников фиксируется при создании
// и не меняется до повторного Resolve. Флаг Saved меняет только сам Ledger.
type Ledger struct {
	mu      sync.Mutex
	classID int64
	date    time.Time
	order   []int64
	byID    map[int64]*models.AttendanceRecord
}

// Counts — разбивка сессии по состояниям; сумма всегда равна размеру ростера.
type Counts struct {
	Present  int
	Absent   int
	Unmarked int
}

func (c Counts) Total() int { return c.Present + c.Absent + c.Unmarked }

func NewLedger(classID int64, date time.Time, records []models.AttendanceRecord) *Ledger {
	l := &Ledger{
		classID: classID,
		date:    models.SessionDate(date),
		order:   make([]int64, 0, len(records)),
		byID:    make(map[int64]*models.AttendanceRecord, len(records)),
	}
	for _, r := range records {
		if _, dup := l.byID[r.StudentID]; dup {
			continue
		}
		rec := r
		rec.ClassID = classID
		rec.Date = l.date
		l.order = append(l.order, r.StudentID)
		l.byID[r.StudentID] = &rec
	}
	return l
}

func (l *Ledger) ClassID() int64 { return l.classID }
func (l *Ledger) Date() time.Time { return l.date }
func (l *Ledger) Len() int { return len(l.order) }

func (l *Ledger) Has(studentID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.byID[studentID]
	return ok
}

// Toggle: первое нажатие из Unmarked даёт Present, дальше Present/Absent чередуются.
func (l *Ledger) Toggle(studentID int64) (models.AttendanceState, error) {
	var st models.AttendanceState
	err := l.mutate(studentID, func(r *models.AttendanceRecord) {
		r.State = r.State.Next()
		st = r.State
	})
	return st, err
}

// SetPresent — односторонний переход в Present (QR-скан); повтор ничего не меняет в состоянии.
func (l *Ledger) SetPresent(studentID int64) error {
	return l.mutate(studentID, func(r *models.AttendanceRecord) {
		r.State = models.Present
	})
}

func (l *Ledger) SetNote(studentID int64, text string) error {
	return l.mutate(studentID, func(r *models.AttendanceRecord) {
		r.Note = text
	})
}

// MarkAllPresent ставит Present всем и сбрасывает Saved даже у уже сохранённых записей.
func (l *Ledger) MarkAllPresent() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range l.order {
		r := l.byID[id]
		r.State = models.Present
		touch(r)
	}
}

// PendingChanges — несохранённые отмеченные записи в порядке ростера.
// Unmarked в хранилище не уходят никогда.
func (l *Ledger) PendingChanges() []models.AttendanceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.AttendanceRecord, 0)
	for _, id := range l.order {
		r := l.byID[id]
		if !r.Saved && r.State != models.Unmarked {
			out = append(out, *r)
		}
	}
	return out
}

// Commit помечает записанные записи как Saved. Если запись изменилась после снимка
// (Rev не совпадает), флаг не трогаем: запись остаётся Unsaved.
func (l *Ledger) Commit(results []models.AttendanceRecord) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, res := range results {
		r, ok := l.byID[res.StudentID]
		if !ok || r.Rev != res.Rev {
			continue
		}
		r.Saved = true
		n++
	}
	return n
}

func (l *Ledger) Record(studentID int64) (models.AttendanceRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byID[studentID]
	if !ok {
		return models.AttendanceRecord{}, false
	}
	return *r, true
}

func (l *Ledger) Records() []models.AttendanceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.AttendanceRecord, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.byID[id])
	}
	return out
}

// Absent — ученики, отмеченные отсутствующими (для уведомлений родителям).
func (l *Ledger) Absent() []models.AttendanceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.AttendanceRecord
	for _, id := range l.order {
		if r := l.byID[id]; r.State == models.Absent {
			out = append(out, *r)
		}
	}
	return out
}

func (l *Ledger) Counts() Counts {
	l.mu.Lock()
	defer l.mu.Unlock()
	var c Counts
	for _, r := range l.byID {
		switch r.State {
		case models.Present:
			c.Present++
		case models.Absent:
			c.Absent++
		default:
			c.Unmarked++
		}
	}
	return c
}

func (l *Ledger) mutate(studentID int64, fn func(r *models.AttendanceRecord)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byID[studentID]
	if !ok {
		return fmt.Errorf("student %d: %w", studentID, apperr.ErrNotInRoster)
	}
	fn(r)
	touch(r)
	return nil
}

func touch(r *models.AttendanceRecord) {
	r.Saved = false
	r.Rev++
}
