package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AttendanceWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "educenter", Name: "attendance_writes_total", Help: "Attendance record writes by result",
	}, []string{"result"})
	Checkins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "educenter", Name: "checkins_total", Help: "QR check-ins by outcome",
	}, []string{"outcome"})
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "educenter", Name: "notifications_sent_total", Help: "Delivered guardian notifications",
	}, []string{"category"})
	NotificationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "educenter", Name: "notifications_failed_total", Help: "Failed guardian notifications",
	}, []string{"category", "reason"})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "educenter", Name: "handler_errors_total", Help: "Handler errors",
	})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "educenter", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(AttendanceWrites, Checkins, NotificationsSent, NotificationsFailed, HandlerErrors, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
