package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Spok95/edu-center-bot/internal/app"
	"github.com/Spok95/edu-center-bot/internal/config"
	"github.com/Spok95/edu-center-bot/internal/db"
	"github.com/Spok95/edu-center-bot/internal/jobs"
	"github.com/Spok95/edu-center-bot/internal/logging"
	"github.com/Spok95/edu-center-bot/internal/notify"
	"github.com/Spok95/edu-center-bot/internal/observability"
	"github.com/Spok95/edu-center-bot/internal/tg"
	"github.com/Spok95/edu-center-bot/internal/tuition"
)

var version = "dev"

func main() {
	// Загрузка переменных окружения
	if err := godotenv.Load(); err != nil {
		log.Println("Не удалось загрузить .env файл, используем переменные окружения")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Closer()
	logger := lg.Base

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
	}
	defer flush()
	// Fatal не выполняет defer: отправляем ошибку в Sentry до выхода
	fatal := func(msg string, err error) {
		observability.CaptureErr(err)
		flush()
		logger.Fatal(msg, zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("db open", err)
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(database); err != nil {
		fatal("migrate", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		fatal("telegram bot", err)
	}
	logger.Info("bot authorized", zap.String("username", bot.Self.UserName))

	dedup := newDeduper(ctx, cfg, logger)

	amortizer := tuition.Amortizer{}
	if cfg.TuitionCountLinked {
		amortizer.Paid = tuition.CountLinkedPeriods
	}

	engine := app.NewEngine(db.NewStore(database), tg.NewChannel(bot), app.Options{
		SaveWorkers:     cfg.SaveWorkers,
		DispatchWorkers: cfg.DispatchWorkers,
		Periods:         cfg.TuitionPeriods,
		GraceDays:       cfg.TuitionGraceDays,
		Location:        cfg.Location,
		Amortizer:       amortizer,
		Deduper:         dedup,
		Templates: map[notify.Category]string{
			notify.CategoryAbsence:    cfg.AbsenceTemplate,
			notify.CategoryTuitionDue: cfg.TuitionDueTemplate,
		},
	}, lg.For("engine"))

	app.StartHTTP(ctx, cfg.HTTPAddr, database, engine, cfg.RoleOf, lg.For("http"))
	logger.Info("http server started", zap.String("addr", cfg.HTTPAddr))

	runner := jobs.New(ctx, lg.For("jobs"))
	if cfg.ReminderInterval > 0 {
		runner.Every(cfg.ReminderInterval, "tuition_reminders",
			jobs.TuitionReminders(engine, "", cfg.Location, time.Now, lg.For("jobs")))
	}

	<-ctx.Done()
	logger.Info("shutting down")
	runner.Wait()
}

// newDeduper — Redis, если задан REDIS_ADDR и доступен; иначе память процесса.
func newDeduper(ctx context.Context, cfg *config.Config, logger *zap.Logger) notify.Deduper {
	if cfg.RedisAddr == "" {
		return notify.NewMemoryDeduper()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, dedup in memory", zap.Error(err))
		_ = client.Close()
		return notify.NewMemoryDeduper()
	}
	return notify.NewRedisDeduper(client, 24*time.Hour)
}
