package notify

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/metrics"
)

// Channel — внешний мессенджер (Telegram/Zalo/SMS).
type Channel interface {
	Send(ctx context.Context, contact, text string) error
}

type Recipient struct {
	StudentID int64
	Contact   string
	Category  Category
	Template  string
	Vars      Vars
}

// Message — отрисованное уведомление и результат отправки. Живёт в пределах одной пачки.
type Message struct {
	StudentID int64
	Category  Category
	Text      string
	Err       error
}

type Failure struct {
	StudentID int64
	Reason    string
	Err       error
}

// BatchResult: Sent + Failed + Skipped == числу получателей; Skipped > 0 только при отмене.
// Deduplicated — отсечены повторной проверкой до рассылки и в Total не входят.
type BatchResult struct {
	Sent         int
	Failed       int
	Skipped      int
	Deduplicated int
	Failures     []Failure
	Messages     []Message
}

func (r BatchResult) Total() int { return r.Sent + r.Failed + r.Skipped }

// DefaultWorkers — мессенджер ограничивает частоту снаружи, держим пул небольшим.
const DefaultWorkers = 4

type Dispatcher struct {
	ch      Channel
	workers int
	log     *zap.Logger
}

func NewDispatcher(ch Channel, workers int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{ch: ch, workers: workers, log: log}
}

type outcome struct {
	idx  int
	text string
	err  error
}

// Dispatch отправляет каждому получателю ровно одну попытку через пул воркеров.
// Ошибка одного получателя не останавливает остальных. Получатели без контакта
// сразу идут в Failed с причиной NoContact. После отмены ctx новые отправки не начинаются;
// уже отправленное не откатывается.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []Recipient) BatchResult {
	var res BatchResult
	if len(recipients) == 0 {
		return res
	}

	jobs := make(chan int)
	results := make(chan outcome, len(recipients))

	var wg sync.WaitGroup
	for w := 0; w < d.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r := recipients[i]
				text := Render(r.Category, r.Template, r.Vars)
				sctx, cancel := ctxutil.WithSendTimeout(ctx)
				err := d.ch.Send(sctx, r.Contact, text)
				cancel()
				results <- outcome{idx: i, text: text, err: err}
			}
		}()
	}

feed:
	for i, r := range recipients {
		if ctx.Err() != nil {
			res.Skipped += len(recipients) - i
			break
		}
		if r.Contact == "" {
			results <- outcome{idx: i, err: apperr.ErrNoContact}
			continue
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			res.Skipped += len(recipients) - i
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	collected := make([]outcome, 0, len(recipients))
	for o := range results {
		collected = append(collected, o)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].idx < collected[j].idx })

	for _, o := range collected {
		r := recipients[o.idx]
		switch {
		case o.err == nil:
			res.Sent++
			metrics.NotificationsSent.WithLabelValues(string(r.Category)).Inc()
		case ctx.Err() != nil && errors.Is(o.err, context.Canceled):
			// отправка оборвана отменой — не завершилась
			res.Skipped++
			continue
		default:
			reason := apperr.Reason(o.err)
			res.Failed++
			res.Failures = append(res.Failures, Failure{StudentID: r.StudentID, Reason: reason, Err: o.err})
			metrics.NotificationsFailed.WithLabelValues(string(r.Category), reason).Inc()
			if !errors.Is(o.err, apperr.ErrNoContact) {
				d.log.Warn("notification failed",
					zap.Int64("student_id", r.StudentID),
					zap.String("category", string(r.Category)),
					zap.Error(o.err),
				)
			}
		}
		if o.text != "" {
			res.Messages = append(res.Messages, Message{StudentID: r.StudentID, Category: r.Category, Text: o.text, Err: o.err})
		}
	}

	d.log.Info("notification batch done",
		zap.Int("recipients", len(recipients)),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
	)
	return res
}
