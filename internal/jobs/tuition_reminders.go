package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/edu-center-bot/internal/notify"
)

// TuitionNotifier — то, что задаче нужно от движка.
type TuitionNotifier interface {
	NotifyTuitionDue(ctx context.Context, asOf time.Time, template string) (notify.BatchResult, error)
}

// TuitionReminders — плановое напоминание должникам. Повторы в тот же день
// отсекает дедупликация движка, поэтому интервал может быть меньше суток.
func TuitionReminders(n TuitionNotifier, template string, loc *time.Location, now func() time.Time, log *zap.Logger) Job {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context) error {
		res, err := n.NotifyTuitionDue(ctx, now().In(loc), template)
		if err != nil {
			return fmt.Errorf("tuition reminders: %w", err)
		}
		reminderOutcomes.WithLabelValues("sent").Add(float64(res.Sent))
		reminderOutcomes.WithLabelValues("failed").Add(float64(res.Failed))
		reminderOutcomes.WithLabelValues("skipped").Add(float64(res.Skipped))
		if res.Total() > 0 {
			log.Info("tuition reminders dispatched",
				zap.Int("sent", res.Sent),
				zap.Int("failed", res.Failed),
				zap.Int("skipped", res.Skipped),
			)
		}
		return nil
	}
}
