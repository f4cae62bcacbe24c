package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Spok95/edu-center-bot/internal/models"
)

type Config struct {
	BotToken      string
	DatabaseURL   string
	RedisAddr     string // пусто — дедупликация в памяти
	RedisPassword string
	AdminIDs      []int64
	TeacherIDs    []int64
	Location      *time.Location
	HTTPAddr      string
	LogLevel      string
	Env           string // dev|prod
	SentryDSN     string

	DispatchWorkers  int
	SaveWorkers      int
	TuitionPeriods   int
	TuitionGraceDays int
	ReminderInterval time.Duration // 0 — плановые напоминания выключены
	// TuitionCountLinked — учитывать платежи с номером периода как закрывающие период
	TuitionCountLinked bool

	// шаблоны уведомлений; пусто — встроенные
	AbsenceTemplate    string
	TuitionDueTemplate string
}

func Load() (*Config, error) {
	tz := getenv("TZ", "Asia/Ho_Chi_Minh")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	var errs []error
	need := func(k string) string {
		v := os.Getenv(k)
		if v == "" {
			errs = append(errs, fmt.Errorf("required env %s is empty", k))
		}
		return v
	}
	ids := func(k string) []int64 {
		out, err := parseIDs(os.Getenv(k))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
		return out
	}
	num := func(k string, def int) int {
		n, err := atoi(k, def)
		if err != nil {
			errs = append(errs, err)
		}
		return n
	}

	cfg := &Config{
		BotToken:      need("BOT_TOKEN"),
		DatabaseURL:   need("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		AdminIDs:      ids("ADMIN_IDS"),
		TeacherIDs:    ids("TEACHER_IDS"),
		Location:      loc,
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		Env:           getenv("ENV", "dev"),
		SentryDSN:     os.Getenv("SENTRY_DSN"),

		DispatchWorkers:  num("DISPATCH_WORKERS", 4),
		SaveWorkers:      num("SAVE_WORKERS", 4),
		TuitionPeriods:   num("TUITION_PERIODS", models.DefaultPeriods),
		TuitionGraceDays: num("TUITION_GRACE_DAYS", 7),

		AbsenceTemplate:    os.Getenv("ABSENCE_TEMPLATE"),
		TuitionDueTemplate: os.Getenv("TUITION_DUE_TEMPLATE"),
	}

	if s := os.Getenv("REMINDER_INTERVAL"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("REMINDER_INTERVAL: %w", err))
		}
		cfg.ReminderInterval = d
	}
	if s := os.Getenv("TUITION_COUNT_LINKED"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("TUITION_COUNT_LINKED: %w", err))
		}
		cfg.TuitionCountLinked = b
	}
	if cfg.TuitionPeriods <= 0 {
		errs = append(errs, errors.New("TUITION_PERIODS must be positive"))
	}
	if cfg.TuitionGraceDays < 0 {
		errs = append(errs, errors.New("TUITION_GRACE_DAYS must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RoleOf — роль оператора по telegram id; неизвестные — Student (без прав).
func (c *Config) RoleOf(id int64) models.Role {
	for _, a := range c.AdminIDs {
		if a == id {
			return models.RoleAdmin
		}
	}
	for _, t := range c.TeacherIDs {
		if t == id {
			return models.RoleTeacher
		}
	}
	return models.RoleStudent
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: bad number %q", k, v)
	}
	return n, nil
}

func parseIDs(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
