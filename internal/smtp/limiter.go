package smtp

import (
	"sync"

	"golang.org/x/time/rate"
)

// ConnectionLimiter 限制并发连接数与新建连接速率。
type ConnectionLimiter struct {
	mu       sync.Mutex
	maxConns int
	current  int
	limiter  *rate.Limiter
}

// NewConnectionLimiter 创建连接限流器。
// maxConns 是最大并发连接数，maxRate 是每秒最大新建连接数。
func NewConnectionLimiter(maxConns, maxRate int) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxConns: maxConns,
		limiter:  rate.NewLimiter(rate.Limit(maxRate), maxRate),
	}
}

// Acquire 获取连接许可。
func (l *ConnectionLimiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current >= l.maxConns {
		return false
	}
	if !l.limiter.Allow() {
		return false
	}

	l.current++
	return true
}

// Release 释放连接。
func (l *ConnectionLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current > 0 {
		l.current--
	}
}

// Current 当前连接数。
func (l *ConnectionLimiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
