package opensearch

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// rateLimitedLogger emits at most one warning per interval and reports how many
// were dropped in between.
type rateLimitedLogger struct {
	log      *logrus.Entry
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastAt     time.Time
	suppressed int
}

func newRateLimitedLogger(log *logrus.Entry, interval time.Duration) *rateLimitedLogger {
	return &rateLimitedLogger{log: log, interval: interval, now: time.Now}
}

func (l *rateLimitedLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	now := l.now()
	if !l.lastAt.IsZero() && now.Sub(l.lastAt) < l.interval {
		l.suppressed++
		l.mu.Unlock()
		return
	}
	l.lastAt = now
	dropped := l.suppressed
	l.suppressed = 0
	l.mu.Unlock()

	entry := l.log
	if dropped > 0 {
		entry = entry.WithField("suppressed", dropped)
	}
	entry.Warnf(format, args...)
}
