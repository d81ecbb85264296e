// Package memstore is a mutex-guarded in-process implementation of every store contract.
// It backs the memory driver for local runs and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/store"
	"github.com/mbeoliero/unichat/pkg/errcode"
)

// MemoryStore keeps conversations, messages, sequences, presence and users in maps.
// Every value crosses the boundary as a copy.
type MemoryStore struct {
	// txMu serialises Atomic units against each other
	txMu          sync.Mutex
	mu            sync.RWMutex
	conversations map[string]*entity.Conversation
	messages      map[string][]*entity.Message // conversation id -> messages
	seqs          map[string]int64
	presence      map[string]*entity.Presence
	users         map[string]*entity.User

	// failWith, when set, is returned by every operation to simulate an outage.
	failMu   sync.RWMutex
	failWith error
}

var (
	_ store.Store         = (*MemoryStore)(nil)
	_ store.SeqAllocator  = (*MemoryStore)(nil)
	_ store.PresenceStore = (*PresenceView)(nil)
	_ store.UserStore     = (*MemoryStore)(nil)
)

// New creates an empty MemoryStore
func New() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*entity.Conversation),
		messages:      make(map[string][]*entity.Message),
		seqs:          make(map[string]int64),
		presence:      make(map[string]*entity.Presence),
		users:         make(map[string]*entity.User),
	}
}

// SetFailure makes every subsequent call return err; nil restores normal operation.
func (s *MemoryStore) SetFailure(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failWith = err
}

func (s *MemoryStore) failure() error {
	s.failMu.RLock()
	defer s.failMu.RUnlock()
	return s.failWith
}

// Conversations returns the conversation view
func (s *MemoryStore) Conversations() store.ConversationStore { return (*conversationView)(s) }

// Messages returns the message view
func (s *MemoryStore) Messages() store.MessageStore { return (*messageView)(s) }

// Presence returns the presence view
func (s *MemoryStore) Presence() *PresenceView { return (*PresenceView)(s) }

// Atomic runs fn while no other Atomic unit runs. A failing unit is not rolled back.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

// Ping reports the injected failure, if any
func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.failure()
}

// PutUser seeds a user profile
func (s *MemoryStore) PutUser(u *entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.Id] = &cp
}

// GetById returns a user profile
func (s *MemoryStore) GetById(ctx context.Context, userId string) (*entity.User, error) {
	if err := s.failure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userId]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// AllocSeq increments the conversation counter
func (s *MemoryStore) AllocSeq(ctx context.Context, conversationId string) (int64, error) {
	if err := s.failure(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[conversationId]++
	return s.seqs[conversationId], nil
}

// Release drops the conversation counter
func (s *MemoryStore) Release(ctx context.Context, conversationId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seqs, conversationId)
	return nil
}

type conversationView MemoryStore

func (v *conversationView) CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (bool, error) {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[conv.Id]; exists {
		return false, nil
	}
	s.conversations[conv.Id] = conv.Clone()
	return true, nil
}

func (v *conversationView) Get(ctx context.Context, conversationId string) (*entity.Conversation, error) {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversations[conversationId].Clone(), nil
}

func (v *conversationView) ListByUser(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*entity.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.HasParticipant(userId) {
			result = append(result, conv.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt != result[j].UpdatedAt {
			return result[i].UpdatedAt > result[j].UpdatedAt
		}
		return result[i].Id < result[j].Id
	})
	return result, nil
}

func (v *conversationView) ApplyMessage(ctx context.Context, msg *entity.Message) error {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[msg.ConversationId]
	if !ok {
		return errcode.ErrConvNotFound
	}
	conv.LastMessage = msg.ToLastMessage()
	conv.UpdatedAt = msg.Timestamp
	if conv.UnreadCount == nil {
		conv.UnreadCount = make(map[string]int64)
	}
	for _, uid := range conv.ParticipantIds {
		if uid != msg.SenderId {
			conv.UnreadCount[uid]++
		}
	}
	return nil
}

func (v *conversationView) ResetUnread(ctx context.Context, conversationId, userId string) (bool, error) {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationId]
	if !ok || conv.UnreadCount[userId] == 0 {
		return false, nil
	}
	conv.UnreadCount[userId] = 0
	return true, nil
}

func (v *conversationView) Delete(ctx context.Context, conversationId string) error {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationId)
	return nil
}

type messageView MemoryStore

func (v *messageView) Create(ctx context.Context, msg *entity.Message) error {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.messages[msg.ConversationId], msg.Clone())
	sort.SliceStable(list, func(i, j int) bool { return list[i].Before(list[j]) })
	s.messages[msg.ConversationId] = list
	return nil
}

func (v *messageView) ListByConversation(ctx context.Context, conversationId string) ([]*entity.Message, error) {
	return v.Recent(ctx, conversationId, 0)
}

func (v *messageView) Recent(ctx context.Context, conversationId string, limit int) ([]*entity.Message, error) {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.messages[conversationId]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	result := make([]*entity.Message, 0, len(list))
	for _, m := range list {
		result = append(result, m.Clone())
	}
	return result, nil
}

func (v *messageView) MarkRead(ctx context.Context, conversationId, readerId string) (int64, error) {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for _, m := range s.messages[conversationId] {
		if m.MarkReadBy(readerId) {
			updated++
		}
	}
	return updated, nil
}

func (v *messageView) DeleteByConversation(ctx context.Context, conversationId string) error {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, conversationId)
	return nil
}

// PresenceView exposes presence records of a MemoryStore
type PresenceView MemoryStore

// Upsert replaces the record
func (v *PresenceView) Upsert(ctx context.Context, p *entity.Presence) error {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.presence[p.UserId] = &cp
	return nil
}

// Get returns the record
func (v *PresenceView) Get(ctx context.Context, userId string) (*entity.Presence, error) {
	s := (*MemoryStore)(v)
	if err := s.failure(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presence[userId]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}
