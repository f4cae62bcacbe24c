package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Spok95/edu-center-bot/internal/ctxutil"
	"github.com/Spok95/edu-center-bot/internal/metrics"
	"github.com/Spok95/edu-center-bot/internal/models"
)

// RoleFunc — роль оператора по его id (из конфига).
type RoleFunc func(id int64) models.Role

type HTTPServer struct {
	srv *http.Server
}

type api struct {
	db     *sql.DB
	engine *Engine
	roles  RoleFunc
	loc    *time.Location
	log    *zap.Logger
}

func StartHTTP(ctx context.Context, addr string, db *sql.DB, engine *Engine, roles RoleFunc, log *zap.Logger) *HTTPServer {
	if log == nil {
		log = zap.NewNop()
	}
	a := &api{db: db, engine: engine, roles: roles, loc: engine.opts.Location, log: log}
	srv := &http.Server{Addr: addr, Handler: a.router(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		// закрываем аккуратно при Shutdown
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	return &HTTPServer{srv: srv}
}

func (a *api) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", a.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(a.operator)

		r.Route("/sessions/{classID}/{date}", func(r chi.Router) {
			r.Post("/", a.openSession)
			r.Get("/", a.getSession)
			r.Delete("/", a.closeSession)
			r.Post("/checkin", a.checkin)
			r.Post("/present-all", a.markAllPresent)
			r.Post("/students/{studentID}/toggle", a.toggle)
			r.Put("/students/{studentID}/note", a.setNote)
			r.Post("/save", a.saveSession)
			r.Post("/notify-absences", a.notifyAbsences)
		})

		r.Get("/tuition/unpaid", a.unpaid)
		r.Post("/tuition/reminders", a.tuitionReminders)

		r.Get("/payments", a.listPayments)
		r.Post("/payments", a.createPayment)
		r.Put("/payments/{paymentID}", a.updatePayment)

		r.Get("/reports/attendance", a.attendanceReport)
		r.Get("/reports/finance", a.financeReport)
	})
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	t0 := time.Now()
	if err := a.db.PingContext(ctx); err != nil {
		http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	metrics.ObserveDBPing(time.Since(t0))
	_, _ = w.Write([]byte("ok"))
}

// operator кладёт в ctx оператора из заголовка X-Operator-ID. Подлинность заголовка
// проверяет прокси перед сервисом.
func (a *api) operator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get("X-Operator-ID"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "missing_operator", "X-Operator-ID is required")
			return
		}
		u := models.User{ID: id, TelegramID: id, Role: a.roles(id)}
		ctx := ctxutil.WithOperator(r.Context(), u)
		ctx = ctxutil.WithOp(ctx, r.Method+" "+r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
