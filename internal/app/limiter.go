package app

import "sync"

// KeyLimiter предотвращает одновременную работу двух операций с одной сессией
// (сканы QR идут строго последовательно, закрытие не пересекается с отметками).
// Мьютекс ключа живёт, пока его кто-то держит или ждёт; потом удаляется из карты.
type KeyLimiter struct {
	mu    sync.Mutex
	byKey map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int // держатель + ожидающие
}

func NewKeyLimiter() *KeyLimiter {
	return &KeyLimiter{byKey: make(map[string]*keyLock)}
}

func (l *KeyLimiter) lock(key string) func() {
	l.mu.Lock()
	k, ok := l.byKey[key]
	if !ok {
		k = &keyLock{}
		l.byKey[key] = k
	}
	k.refs++
	l.mu.Unlock()

	k.mu.Lock()
	return func() {
		k.mu.Unlock()
		l.mu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(l.byKey, key)
		}
		l.mu.Unlock()
	}
}

func (l *KeyLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}
