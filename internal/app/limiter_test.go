package app

import (
	"sync"
	"testing"
	"time"
)

func TestKeyLimiter_ExclusiveAndReleased(t *testing.T) {
	l := NewKeyLimiter()
	unlock := l.lock("1:2024-03-15")

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			un := l.lock("1:2024-03-15")
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			un()
		}()
	}

	// пока ключ занят, мьютекс не должен исчезнуть из карты
	time.Sleep(10 * time.Millisecond)
	if l.size() != 1 {
		t.Fatalf("ожидали один мьютекс, получили %d", l.size())
	}
	unlock()
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("одновременно внутри %d операций", maxInside)
	}
	if l.size() != 0 {
		t.Fatalf("освобождённые ключи должны удаляться: %d", l.size())
	}
}
