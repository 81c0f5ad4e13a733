package utils

import (
	"context"
	"sync"
	"time"
)

// WorkerPool runs jobs on a bounded number of goroutines, spacing job starts
// by a minimum interval to stay under upstream rate limits.
type WorkerPool struct {
	maxWorkers  int
	rateLimitMs int
	semaphore   chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	lastRequest time.Time
}

// NewWorkerPool creates a WorkerPool with the given concurrency and rate limit.
func NewWorkerPool(maxWorkers, rateLimitMs int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		maxWorkers:  maxWorkers,
		rateLimitMs: rateLimitMs,
		semaphore:   make(chan struct{}, maxWorkers),
	}
}

// Submit enqueues a job, blocking while all workers are busy. It returns
// false without running the job if ctx is cancelled first.
func (wp *WorkerPool) Submit(ctx context.Context, job func()) bool {
	select {
	case wp.semaphore <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	wp.wg.Add(1)

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		wp.enforceRateLimit()
		job()
	}()
	return true
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) enforceRateLimit() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	minInterval := time.Duration(wp.rateLimitMs) * time.Millisecond
	elapsed := time.Since(wp.lastRequest)
	if elapsed < minInterval {
		time.Sleep(minInterval - elapsed)
	}
	wp.lastRequest = time.Now()
}

// KeySet is a thread-safe set of entity keys.
type KeySet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewKeySet creates an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{seen: make(map[string]struct{})}
}

// Add returns true if the key was newly added, false if already present.
func (s *KeySet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[key]; exists {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Contains reports whether the key is in the set.
func (s *KeySet) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[key]
	return exists
}

// Size returns the number of keys tracked.
func (s *KeySet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
