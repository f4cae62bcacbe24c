package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/attendance"
	"github.com/Spok95/edu-center-bot/internal/metrics"
	"github.com/Spok95/edu-center-bot/internal/models"
)

func sessionKey(classID int64, date time.Time) string {
	return fmt.Sprintf("%d:%s", classID, date.Format("2006-01-02"))
}

func (e *Engine) sessionDate(t time.Time) time.Time {
	return models.SessionDate(t.In(e.opts.Location))
}

func (e *Engine) lookup(key string) (*attendance.Ledger, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.sessions[key]
	return l, ok
}

// OpenSession открывает (или возвращает уже открытую) сессию класса на дату.
// Пустой ростер — пустая сессия без ошибки.
func (e *Engine) OpenSession(ctx context.Context, classID int64, date time.Time) (*attendance.Ledger, error) {
	if err := authorize(ctx, "session.open", models.Role.CanTakeAttendance); err != nil {
		return nil, err
	}
	date = e.sessionDate(date)
	key := sessionKey(classID, date)
	unlock := e.locks.lock(key)
	defer unlock()

	if l, ok := e.lookup(key); ok {
		return l, nil
	}
	recs, err := e.resolver.Resolve(ctx, classID, date)
	if err != nil {
		return nil, err
	}
	l := attendance.NewLedger(classID, date, recs)

	e.mu.Lock()
	e.sessions[key] = l
	e.mu.Unlock()

	e.log.Info("session opened",
		zap.Int64("class_id", classID),
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("roster", l.Len()),
	)
	return l, nil
}

// Session — открытая сессия; ErrNotFound, если её нет.
func (e *Engine) Session(ctx context.Context, classID int64, date time.Time) (*attendance.Ledger, error) {
	if err := authorize(ctx, "session.get", models.Role.CanTakeAttendance); err != nil {
		return nil, err
	}
	return e.session(classID, date)
}

func (e *Engine) session(classID int64, date time.Time) (*attendance.Ledger, error) {
	date = e.sessionDate(date)
	if l, ok := e.lookup(sessionKey(classID, date)); ok {
		return l, nil
	}
	return nil, fmt.Errorf("session class=%d date=%s: %w", classID, date.Format("2006-01-02"), apperr.ErrNotFound)
}

// CloseSession убирает сессию из памяти; несохранённые отметки теряются,
// их число возвращается.
func (e *Engine) CloseSession(ctx context.Context, classID int64, date time.Time) (int, error) {
	if err := authorize(ctx, "session.close", models.Role.CanTakeAttendance); err != nil {
		return 0, err
	}
	key := sessionKey(classID, e.sessionDate(date))
	unlock := e.locks.lock(key)
	defer unlock()

	e.mu.Lock()
	l, ok := e.sessions[key]
	delete(e.sessions, key)
	e.mu.Unlock()
	if !ok {
		return 0, nil
	}
	lost := len(l.PendingChanges())
	if lost > 0 {
		e.log.Warn("session closed with unsaved marks", zap.String("session", key), zap.Int("unsaved", lost))
	}
	return lost, nil
}

// withSession выполняет fn под замком сессии.
func (e *Engine) withSession(ctx context.Context, op string, classID int64, date time.Time, fn func(*attendance.Ledger) error) error {
	if err := authorize(ctx, op, models.Role.CanTakeAttendance); err != nil {
		return err
	}
	date = e.sessionDate(date)
	key := sessionKey(classID, date)
	unlock := e.locks.lock(key)
	defer unlock()

	l, ok := e.lookup(key)
	if !ok {
		return fmt.Errorf("session %s: %w", key, apperr.ErrNotFound)
	}
	return fn(l)
}

// CheckIn — QR-скан. Сканы одной сессии обрабатываются строго по очереди.
func (e *Engine) CheckIn(ctx context.Context, classID int64, date time.Time, rawCode string) (int64, error) {
	var studentID int64
	err := e.withSession(ctx, "session.checkin", classID, date, func(l *attendance.Ledger) error {
		id, err := e.checkin.Resolve(ctx, rawCode, l)
		studentID = id
		return err
	})
	if err != nil && !apperr.IsDomain(err) {
		metrics.HandlerErrors.Inc()
	}
	return studentID, err
}

func (e *Engine) Toggle(ctx context.Context, classID int64, date time.Time, studentID int64) (models.AttendanceState, error) {
	var st models.AttendanceState
	err := e.withSession(ctx, "session.toggle", classID, date, func(l *attendance.Ledger) error {
		s, err := l.Toggle(studentID)
		st = s
		return err
	})
	return st, err
}

func (e *Engine) SetNote(ctx context.Context, classID int64, date time.Time, studentID int64, note string) error {
	return e.withSession(ctx, "session.note", classID, date, func(l *attendance.Ledger) error {
		return l.SetNote(studentID, note)
	})
}

func (e *Engine) MarkAllPresent(ctx context.Context, classID int64, date time.Time) error {
	return e.withSession(ctx, "session.mark_all", classID, date, func(l *attendance.Ledger) error {
		l.MarkAllPresent()
		return nil
	})
}

// SaveSession пишет несохранённые отметки. Замок сессии не берётся: отметки,
// сделанные во время записи, останутся Unsaved и уйдут следующим сохранением.
func (e *Engine) SaveSession(ctx context.Context, classID int64, date time.Time) (int, error) {
	if err := authorize(ctx, "session.save", models.Role.CanTakeAttendance); err != nil {
		return 0, err
	}
	l, err := e.session(classID, date)
	if err != nil {
		return 0, err
	}
	saved, err := l.Save(ctx, e.store, e.opts.SaveWorkers)
	e.log.Info("session saved",
		zap.Int64("class_id", classID),
		zap.String("date", l.Date().Format("2006-01-02")),
		zap.Int("saved", saved),
		zap.Error(err),
	)
	return saved, err
}
