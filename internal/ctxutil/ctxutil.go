package ctxutil

import (
	"context"
	"time"

	"github.com/Spok95/edu-center-bot/internal/models"
)

// приватные ключи, чтобы исключить коллизии
type key int

const (
	keyOperator key = iota
	keyOpName
)

// WithOperator / Operator — кто работает с движком (учитель/админ).
// Фоновые задачи работают без оператора.
func WithOperator(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, keyOperator, u)
}

func Operator(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(keyOperator).(models.User)
	return u, ok
}

// WithOp / Op — имя операции для логов.
func WithOp(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyOpName, name)
}

func Op(ctx context.Context) string {
	s, _ := ctx.Value(keyOpName).(string)
	return s
}

// Таймаут на вызов провайдера (БД, мессенджер). Таймаут провайдера — это
// ProviderTransient, а не доменная ошибка.
var (
	DefaultDBTimeout   = 5 * time.Second
	DefaultSendTimeout = 10 * time.Second
)

// WithTimeout — обёртка над context.WithTimeout; d<=0 — без таймаута.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// WithDBTimeout — стандартный таймаут для БД.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return capped(parent, DefaultDBTimeout)
}

// WithSendTimeout — таймаут на одну отправку сообщения.
func WithSendTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return capped(parent, DefaultSendTimeout)
}

func capped(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok {
		// если у родителя осталось меньше — берем остаток
		if remain := time.Until(dl); remain < d {
			return context.WithTimeout(parent, remain)
		}
	}
	return context.WithTimeout(parent, d)
}
