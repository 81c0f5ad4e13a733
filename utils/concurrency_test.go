package utils

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeySetNoDuplicates(t *testing.T) {
	s := NewKeySet()

	assert.True(t, s.Add("JOE'S DINER"), "first Add should return true")
	assert.False(t, s.Add("JOE'S DINER"), "second Add of same key should return false")
	assert.True(t, s.Contains("JOE'S DINER"))
	assert.Equal(t, 1, s.Size())
}

func TestKeySetConcurrency(t *testing.T) {
	s := NewKeySet()
	var added int64

	pool := NewWorkerPool(10, 0)
	for i := 0; i < 100; i++ {
		pool.Submit(context.Background(), func() {
			if s.Add("same") {
				atomic.AddInt64(&added, 1)
			}
		})
	}
	pool.Wait()

	assert.Equal(t, int64(1), added)
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(3, 0)
	var running, peak int64

	for i := 0; i < 20; i++ {
		pool.Submit(context.Background(), func() {
			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&running, -1)
		})
	}
	pool.Wait()

	assert.LessOrEqual(t, peak, int64(3))
}

func TestWorkerPoolRateLimit(t *testing.T) {
	rateLimitMs := 100
	pool := NewWorkerPool(1, rateLimitMs)

	var mu sync.Mutex
	var timestamps []time.Time

	for i := 0; i < 3; i++ {
		pool.Submit(context.Background(), func() {
			mu.Lock()
			timestamps = append(timestamps, time.Now())
			mu.Unlock()
		})
	}
	pool.Wait()

	min := time.Duration(rateLimitMs) * time.Millisecond
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		if gap < min {
			t.Errorf("gap between job %d and %d: %v < minimum %v", i-1, i, gap, min)
		}
	}
}

func TestWorkerPoolSubmitAfterCancel(t *testing.T) {
	pool := NewWorkerPool(1, 0)
	release := make(chan struct{})
	pool.Submit(context.Background(), func() { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	ok := pool.Submit(ctx, func() { ran = true })
	close(release)
	pool.Wait()

	assert.False(t, ok)
	assert.False(t, ran)
}
