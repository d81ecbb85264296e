package fanout

import (
	"sync"

	"github.com/mbeoliero/kit/log"
)

// subscriber is a single-slot mailbox drained by at most one goroutine at a time.
// A snapshot offered while a delivery is running replaces any older pending one.
type subscriber struct {
	id    uint64
	topic topic
	// prepare turns the shared snapshot into the subscriber's own copy
	prepare func(snapshot any) any
	deliver func(value any)

	mu         sync.Mutex
	pending    any
	hasPending bool
	running    bool
	closed     bool

	ready     chan struct{}
	readyOnce sync.Once
}

func newSubscriber(id uint64, t topic, prepare func(any) any, deliver func(any)) *subscriber {
	if prepare == nil {
		prepare = func(v any) any { return v }
	}
	return &subscriber{
		id:      id,
		topic:   t,
		prepare: prepare,
		deliver: deliver,
		ready:   make(chan struct{}),
	}
}

// offer queues snapshot and starts the drain goroutine if none is running
func (s *subscriber) offer(snapshot any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = snapshot
	s.hasPending = true
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.drain()
}

func (s *subscriber) drain() {
	for {
		s.mu.Lock()
		if s.closed || !s.hasPending {
			s.running = false
			s.pending = nil
			s.mu.Unlock()
			return
		}
		snapshot := s.pending
		s.pending = nil
		s.hasPending = false
		s.mu.Unlock()

		if s.safeDeliver(snapshot) {
			s.readyOnce.Do(func() { close(s.ready) })
		}
	}
}

// safeDeliver copies the snapshot, then hands it to the callback unless the
// subscriber was closed meanwhile. The closed check is the last step before
// the callback, so copying a large snapshot never races Unsubscribe.
func (s *subscriber) safeDeliver(snapshot any) (delivered bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("subscriber callback panicked: topic=%s, sub_id=%d, panic=%v", s.topic, s.id, r)
		}
	}()
	value := s.prepare(snapshot)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	delivered = true
	s.deliver(value)
	return delivered
}

// close stops future deliveries. A delivery that already passed the closed
// check finishes; none starts afterwards.
func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.pending = nil
	s.hasPending = false
	s.mu.Unlock()
}

// Subscription is the handle of one live query
type Subscription struct {
	hub  *Hub
	sub  *subscriber
	once sync.Once
}

// Unsubscribe stops deliveries. It is idempotent, never blocks on a running
// callback and may be called from inside the callback.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.sub.close()
		s.hub.remove(s.sub)
	})
}

// Ready is closed once the first snapshot has been delivered
func (s *Subscription) Ready() <-chan struct{} {
	return s.sub.ready
}

// Topic names the live query, e.g. "conv:si_a:b"
func (s *Subscription) Topic() string {
	return s.sub.topic.String()
}
