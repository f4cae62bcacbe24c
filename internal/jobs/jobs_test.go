package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/notify"
)

func TestRunner_EveryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(ctx, nil)

	var calls atomic.Int32
	var op atomic.Value
	r.Every(5*time.Millisecond, "tick", func(ctx context.Context) error {
		op.Store(ctxutil.Op(ctx))
		if calls.Add(1) == 2 {
			panic("boom")
		}
		return nil
	})

	dead := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(dead) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	r.Wait()
	if calls.Load() < 3 {
		t.Fatalf("паника не должна останавливать задачу: %d запусков", calls.Load())
	}
	if op.Load() != "tick" {
		t.Fatalf("имя задачи в ctx: %v", op.Load())
	}
}

func TestSafeCall(t *testing.T) {
	if err := safeCall(context.Background(), func(context.Context) error { panic("x") }); err == nil {
		t.Fatal("паника должна стать ошибкой")
	}
	want := errors.New("db down")
	if err := safeCall(context.Background(), func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("%v", err)
	}
}

type fakeNotifier struct {
	asOf time.Time
	tmpl string
	res  notify.BatchResult
	err  error
}

func (f *fakeNotifier) NotifyTuitionDue(_ context.Context, asOf time.Time, tmpl string) (notify.BatchResult, error) {
	f.asOf, f.tmpl = asOf, tmpl
	return f.res, f.err
}

func TestTuitionReminders(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	now := time.Date(2024, 3, 31, 20, 0, 0, 0, time.UTC) // уже 1 апреля по Ханою
	n := &fakeNotifier{res: notify.BatchResult{Sent: 2, Failed: 1}}

	job := TuitionReminders(n, "tmpl", loc, func() time.Time { return now }, nil)
	if err := job(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n.asOf.Day() != 1 || n.asOf.Location() != loc || n.tmpl != "tmpl" {
		t.Fatalf("asOf=%v tmpl=%q", n.asOf, n.tmpl)
	}

	n.err = errors.New("provider")
	if err := job(context.Background()); err == nil {
		t.Fatal("ошибка движка должна вернуться раннеру")
	}
}
