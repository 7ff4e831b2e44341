package gateway

import (
	"sync"
	"time"
)

// RateLimiter 控制对桥接服务的请求速率。
type RateLimiter interface {
	Wait()
}

// TokenBucketLimiter 令牌桶限流器。每个 watcher 独立轮询，
// 共享同一个桶可以防止订单数量上来后把桥接服务打挂。
type TokenBucketLimiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	capacity float64
	tokens   float64
	last     time.Time
}

func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		rate:     rate,
		capacity: float64(burst),
		tokens:   float64(burst),
		last:     time.Now(),
	}
}

// Wait blocks until a token is available.
func (l *TokenBucketLimiter) Wait() {
	for {
		l.mu.Lock()
		now := time.Now()
		l.tokens += now.Sub(l.last).Seconds() * l.rate
		l.last = now
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return
		}
		deficit := 1 - l.tokens
		l.mu.Unlock()
		time.Sleep(time.Duration(deficit/l.rate*float64(time.Second)) + time.Millisecond)
	}
}
