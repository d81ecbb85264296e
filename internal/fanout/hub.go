// Package fanout keeps live queries up to date: every change re-reads the
// affected result sets and pushes the full snapshot to their subscribers.
package fanout

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/metrics"
)

const (
	defaultWorkerNum   = 8
	defaultLoadTimeout = 5 * time.Second
)

// Loader reads the current result set of each live query
type Loader interface {
	LoadMessages(ctx context.Context, conversationId string) ([]*entity.Message, error)
	LoadConversations(ctx context.Context, userId string) ([]*entity.Conversation, error)
	LoadPresence(ctx context.Context, userId string) (*entity.Presence, error)
}

// Hub routes changes to live queries. Topics are sharded onto workers by hash,
// so loads of one topic never overlap and run in change order.
type Hub struct {
	loader      Loader
	loadTimeout time.Duration
	shards      []*shard

	mu     sync.RWMutex
	subs   map[topic]map[uint64]*subscriber
	nextId atomic.Uint64

	runOnce  sync.Once
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// shard holds the dirty topics of one worker. Marking a topic that is already
// dirty is a no-op, so bursts collapse into one reload.
type shard struct {
	mu     sync.Mutex
	dirty  map[topic]struct{}
	order  []topic
	signal chan struct{}
}

func newShard() *shard {
	return &shard{
		dirty:  make(map[topic]struct{}),
		signal: make(chan struct{}, 1),
	}
}

func (s *shard) mark(t topic) {
	s.mu.Lock()
	if _, ok := s.dirty[t]; !ok {
		s.dirty[t] = struct{}{}
		s.order = append(s.order, t)
	}
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *shard) take() []topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return nil
	}
	topics := s.order
	s.order = nil
	s.dirty = make(map[topic]struct{}, len(topics))
	return topics
}

// NewHub creates a Hub. Non-positive arguments fall back to defaults.
func NewHub(loader Loader, workerNum int, loadTimeout time.Duration) *Hub {
	if workerNum <= 0 {
		workerNum = defaultWorkerNum
	}
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}
	h := &Hub{
		loader:      loader,
		loadTimeout: loadTimeout,
		shards:      make([]*shard, workerNum),
		subs:        make(map[topic]map[uint64]*subscriber),
	}
	for i := range h.shards {
		h.shards[i] = newShard()
	}
	return h
}

// Run starts the workers. It returns immediately; workers exit when ctx is done or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	h.runOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		h.cancel = cancel
		for i, s := range h.shards {
			h.wg.Add(1)
			go h.worker(ctx, i, s)
		}
		log.Info("fanout hub started %d workers", len(h.shards))
	})
}

// Stop cancels the workers and waits for them to exit. Running callbacks are not awaited.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
		h.wg.Wait()
	})
}

// Publish marks every live query touched by change as dirty
func (h *Hub) Publish(ctx context.Context, change entity.Change) {
	metrics.ChangesPublished.WithLabelValues(string(change.Kind)).Inc()
	for _, t := range topicsFor(change) {
		if h.hasSubscribers(t) {
			h.shardOf(t).mark(t)
		}
	}
}

// SubscribeConversationMessages delivers the conversation's messages ordered by (timestamp, seq)
func (h *Hub) SubscribeConversationMessages(conversationId string, fn func([]*entity.Message)) *Subscription {
	prepare := func(v any) any {
		messages := v.([]*entity.Message)
		cp := make([]*entity.Message, len(messages))
		for i, m := range messages {
			cp[i] = m.Clone()
		}
		return cp
	}
	return h.subscribe(topic{kind: topicMessages, id: conversationId}, prepare, func(v any) {
		fn(v.([]*entity.Message))
	})
}

// SubscribeUserConversations delivers the user's conversations, most recently updated first
func (h *Hub) SubscribeUserConversations(userId string, fn func([]*entity.Conversation)) *Subscription {
	prepare := func(v any) any {
		convs := v.([]*entity.Conversation)
		cp := make([]*entity.Conversation, len(convs))
		for i, c := range convs {
			cp[i] = c.Clone()
		}
		return cp
	}
	return h.subscribe(topic{kind: topicConversations, id: userId}, prepare, func(v any) {
		fn(v.([]*entity.Conversation))
	})
}

// SubscribeUserOnlineStatus delivers the user's presence record
func (h *Hub) SubscribeUserOnlineStatus(userId string, fn func(*entity.Presence)) *Subscription {
	prepare := func(v any) any {
		p := *v.(*entity.Presence)
		return &p
	}
	return h.subscribe(topic{kind: topicPresence, id: userId}, prepare, func(v any) {
		fn(v.(*entity.Presence))
	})
}

func (h *Hub) subscribe(t topic, prepare func(any) any, deliver func(any)) *Subscription {
	sub := newSubscriber(h.nextId.Add(1), t, prepare, deliver)

	h.mu.Lock()
	subs, ok := h.subs[t]
	if !ok {
		subs = make(map[uint64]*subscriber)
		h.subs[t] = subs
	}
	subs[sub.id] = sub
	h.mu.Unlock()

	metrics.ActiveSubscriptions.Inc()
	// the reload triggered here is the initial snapshot
	h.shardOf(t).mark(t)
	return &Subscription{hub: h, sub: sub}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if subs, ok := h.subs[sub.topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(h.subs, sub.topic)
		}
	}
	h.mu.Unlock()
	metrics.ActiveSubscriptions.Dec()
}

func (h *Hub) hasSubscribers(t topic) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[t]) > 0
}

func (h *Hub) subscribersOf(t topic) []*subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := h.subs[t]
	if len(subs) == 0 {
		return nil
	}
	list := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		list = append(list, s)
	}
	return list
}

func (h *Hub) shardOf(t topic) *shard {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(t.String()))
	return h.shards[hasher.Sum32()%uint32(len(h.shards))]
}

func (h *Hub) worker(ctx context.Context, idx int, s *shard) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			log.Debug("fanout worker %d stopped", idx)
			return
		case <-s.signal:
			for _, t := range s.take() {
				h.refresh(ctx, t)
			}
		}
	}
}

// refresh reloads one topic and offers the snapshot to its current subscribers
func (h *Hub) refresh(ctx context.Context, t topic) {
	subs := h.subscribersOf(t)
	if len(subs) == 0 {
		return
	}

	loadCtx, cancel := context.WithTimeout(ctx, h.loadTimeout)
	defer cancel()

	snapshot, err := h.load(loadCtx, t)
	if err != nil {
		metrics.FanoutLoadErrors.WithLabelValues(t.kind.String()).Inc()
		log.CtxWarn(ctx, "fanout load failed: topic=%s, error=%v", t, err)
		return
	}

	for _, sub := range subs {
		sub.offer(snapshot)
	}
	metrics.FanoutDeliveries.WithLabelValues(t.kind.String()).Add(float64(len(subs)))
}

func (h *Hub) load(ctx context.Context, t topic) (any, error) {
	switch t.kind {
	case topicMessages:
		messages, err := h.loader.LoadMessages(ctx, t.id)
		if err != nil {
			return nil, err
		}
		if messages == nil {
			messages = []*entity.Message{}
		}
		return messages, nil
	case topicConversations:
		convs, err := h.loader.LoadConversations(ctx, t.id)
		if err != nil {
			return nil, err
		}
		if convs == nil {
			convs = []*entity.Conversation{}
		}
		return convs, nil
	default:
		p, err := h.loader.LoadPresence(ctx, t.id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			p = &entity.Presence{UserId: t.id}
		}
		return p, nil
	}
}
