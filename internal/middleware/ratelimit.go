package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"golang.org/x/time/rate"

	"github.com/mbeoliero/unichat/pkg/response"
)

const limiterIdleTTL = 10 * time.Minute

// LimiterStore keeps one token bucket per user and evicts idle ones
type LimiterStore struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientEntry
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore creates a store allowing limitPerMinute events per key with the given burst.
// A non-positive limit disables limiting.
func NewLimiterStore(limitPerMinute, burst int, cleanupInterval time.Duration) *LimiterStore {
	s := &LimiterStore{
		limit:   rate.Inf,
		burst:   burst,
		clients: make(map[string]*clientEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	if limitPerMinute > 0 {
		s.limit = rate.Every(time.Minute / time.Duration(limitPerMinute))
	}
	if s.burst <= 0 {
		s.burst = 1
	}
	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	}
	return s
}

func (s *LimiterStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.stopCh:
			return
		}
	}
}

func (s *LimiterStore) evictIdle() {
	cutoff := s.now().Add(-limiterIdleTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.clients {
		if v.lastSeen.Before(cutoff) {
			delete(s.clients, k)
		}
	}
}

// Stop stops the cleanup goroutine
func (s *LimiterStore) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

func (s *LimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.clients[key]; ok {
		e.lastSeen = s.now()
		return e.limiter
	}
	limiter := rate.NewLimiter(s.limit, s.burst)
	s.clients[key] = &clientEntry{limiter: limiter, lastSeen: s.now()}
	return limiter
}

// Allow reports whether one more event for key is permitted now
func (s *LimiterStore) Allow(key string) bool {
	return s.getLimiter(key).Allow()
}

// SendRateLimit rejects requests once the authenticated user exceeds the send rate
func SendRateLimit(store *LimiterStore) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if !store.Allow(GetUserId(c)) {
			response.TooManyRequests(ctx, c)
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}
