package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper не даёт повторно уведомить того же родителя по тому же поводу в тот же день
// (плановые напоминания тикают чаще, чем раз в день).
type Deduper interface {
	// Claim возвращает true, если ключ взят впервые.
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// DedupKey — ключ повода. scope — класс для уведомлений по сессии (пропуск в двух
// классах за день — два уведомления); 0 — повод без класса (долг по оплате).
func DedupKey(c Category, scope, studentID int64, day time.Time) string {
	if scope == 0 {
		return fmt.Sprintf("%s:%d:%s", c, studentID, day.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s:c%d:%d:%s", c, scope, studentID, day.Format("2006-01-02"))
}

type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{client: client, prefix: "educenter:notify:", ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+key).Err()
}

// MemoryDeduper — для dev и тестов, когда Redis не настроен. Ключи живут ttl,
// просроченные вычищаются при Claim.
type MemoryDeduper struct {
	mu        sync.Mutex
	keys      map[string]time.Time // ключ → когда истекает
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{keys: make(map[string]time.Time), ttl: 24 * time.Hour, now: time.Now}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if !now.Before(d.nextSweep) {
		for k, exp := range d.keys {
			if !now.Before(exp) {
				delete(d.keys, k)
			}
		}
		d.nextSweep = now.Add(d.ttl / 4)
	}
	if exp, ok := d.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.keys[key] = now.Add(d.ttl)
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, key)
	return nil
}

// Len — число живых ключей (для тестов и отладки).
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}
