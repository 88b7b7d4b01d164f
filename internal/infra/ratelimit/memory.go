package ratelimit

import (
	"context"
	"sync"
	"time"

	"educel/internal/domain"
)

// MemoryLimiter считает запросы в памяти процесса. Подходит только для
// одиночного инстанса: счётчики не разделяются между процессами.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	max     int
	window  time.Duration
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

type memoryEntry struct {
	count   int
	resetAt time.Time
}

var _ domain.RateLimiter = (*MemoryLimiter)(nil)

// NewMemory создаёт процесс-локальный лимитер с периодической чисткой.
func NewMemory(max int, window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Hour
	}
	l := &MemoryLimiter{
		entries: make(map[string]*memoryEntry),
		max:     max,
		window:  window,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go l.sweep()
	return l
}

// Check инкрементирует счётчик окна и сравнивает с лимитом.
func (l *MemoryLimiter) Check(_ context.Context, identifier string) (domain.RateLimitResult, error) {
	now := l.now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[identifier]
	if !ok || now.After(entry.resetAt) {
		entry = &memoryEntry{count: 0, resetAt: now.Add(l.window)}
		l.entries[identifier] = entry
	}

	if entry.count >= l.max {
		return domain.RateLimitResult{
			Allowed:   false,
			Limit:     l.max,
			Remaining: 0,
			ResetAt:   entry.resetAt,
		}, nil
	}

	entry.count++
	return domain.RateLimitResult{
		Allowed:   true,
		Limit:     l.max,
		Remaining: l.max - entry.count,
		ResetAt:   entry.resetAt,
	}, nil
}

// Close останавливает фоновую чистку.
func (l *MemoryLimiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *MemoryLimiter) sweep() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			now := l.now().UTC()
			l.mu.Lock()
			for id, entry := range l.entries {
				if now.After(entry.resetAt) {
					delete(l.entries, id)
				}
			}
			l.mu.Unlock()
		}
	}
}
