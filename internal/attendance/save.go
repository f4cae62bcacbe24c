package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/metrics"
	"github.com/Spok95/edu-center-bot/internal/models"
)

// DefaultSaveWorkers — сколько записей пишем параллельно.
const DefaultSaveWorkers = 4

// Save пишет PendingChanges по одной записи на ученика, не больше workers одновременно.
// Флаг Saved ставится на каждую запись сразу после её успешной записи; неудачная запись
// остаётся Unsaved и не мешает остальным. Возвращает число помеченных Saved.
func (l *Ledger) Save(ctx context.Context, w Writer, workers int) (int, error) {
	pending := l.PendingChanges()
	if len(pending) == 0 {
		return 0, nil
	}
	if workers <= 0 {
		workers = DefaultSaveWorkers
	}

	var (
		g     errgroup.Group
		mu    sync.Mutex
		errs  []error
		saved int
	)
	g.SetLimit(workers)

	for _, rec := range pending {
		rec := rec
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			dbCtx, cancel := ctxutil.WithDBTimeout(ctx)
			err := w.SaveAttendance(dbCtx, rec)
			cancel()
			if err != nil {
				metrics.AttendanceWrites.WithLabelValues("error").Inc()
				key := fmt.Sprintf("class=%d student=%d date=%s", rec.ClassID, rec.StudentID, rec.Date.Format("2006-01-02"))
				mu.Lock()
				errs = append(errs, apperr.Provider("attendance.save", key, err))
				mu.Unlock()
				return nil
			}
			metrics.AttendanceWrites.WithLabelValues("ok").Inc()
			n := l.Commit([]models.AttendanceRecord{rec})
			mu.Lock()
			saved += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return saved, errors.Join(errs...)
}
