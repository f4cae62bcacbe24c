// Package observability — отправка системных ошибок в Sentry.
package observability

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Spok95/edu-center-bot/internal/apperr"
)

// InitSentry без DSN ничего не делает; возвращает flush для defer в main.
func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          release,
		AttachStacktrace: true,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// Capture отправляет только системные ошибки: доменные (нет в ростере, нет контакта,
// валидация) — это нормальные исходы, в Sentry им не место.
func Capture(err error, tags map[string]string) bool {
	if err == nil || apperr.IsDomain(err) {
		return false
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		var pe *apperr.ProviderError
		if errors.As(err, &pe) {
			scope.SetTag("op", pe.Op)
			scope.SetExtra("key", pe.Key)
		}
		sentry.CaptureException(err)
	})
	return true
}

func CaptureErr(err error) { Capture(err, nil) }
