package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/repository/memstore"
	"github.com/mbeoliero/unichat/internal/store"
	"github.com/mbeoliero/unichat/pkg/errcode"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []entity.Change
}

func (n *recordingNotifier) Publish(_ context.Context, change entity.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
}

func (n *recordingNotifier) kinds() []entity.ChangeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]entity.ChangeKind, 0, len(n.changes))
	for _, c := range n.changes {
		kinds = append(kinds, c.Kind)
	}
	return kinds
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = nil
}

type recordingTrigger struct {
	mu       sync.Mutex
	messages []*entity.Message
}

func (r *recordingTrigger) TriggerAIResponse(_ context.Context, _ *entity.Conversation, msg *entity.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

type staticPersonas map[string][2]string

func (p staticPersonas) LookupPersona(characterId string) (string, string, bool) {
	v, ok := p[characterId]
	return v[0], v[1], ok
}

type fixture struct {
	mem      *memstore.MemoryStore
	notifier *recordingNotifier
	trigger  *recordingTrigger
	convs    *ConversationService
	msgs     *MessageService
	presence *PresenceService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memstore.New()
	mem.PutUser(&entity.User{Id: "alice", Nickname: "Alice", Avatar: "alice.png"})
	mem.PutUser(&entity.User{Id: "bob", Nickname: "Bob"})

	identity := NewIdentityService(mem, staticPersonas{"maya": {"Maya", "maya.png"}})
	f := &fixture{
		mem:      mem,
		notifier: &recordingNotifier{},
		trigger:  &recordingTrigger{},
		convs:    NewConversationService(mem, mem, identity),
		msgs:     NewMessageService(mem, mem, 20),
		presence: NewPresenceService(mem.Presence(), 0),
	}
	f.convs.SetNotifier(f.notifier)
	f.msgs.SetNotifier(f.notifier)
	f.msgs.SetReplyTrigger(f.trigger)
	f.presence.SetNotifier(f.notifier)
	return f
}

func (f *fixture) conversation(t *testing.T, a, b string) string {
	t.Helper()
	id, err := f.convs.GetOrCreateConversation(context.Background(), &GetOrCreateRequest{UserA: a, UserB: b})
	require.NoError(t, err)
	return id
}

func (f *fixture) send(t *testing.T, convId, sender, content string) *entity.Message {
	t.Helper()
	msg, err := f.msgs.SendMessage(context.Background(), &SendMessageRequest{
		ConversationId: convId,
		SenderId:       sender,
		Content:        content,
	})
	require.NoError(t, err)
	return msg
}

func TestGetOrCreateConversation_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.conversation(t, "alice", "bob")
	second := f.conversation(t, "bob", "alice")
	assert.Equal(t, first, second)
	assert.Equal(t, []entity.ChangeKind{entity.ChangeConversation}, f.notifier.kinds())

	conv, err := f.convs.GetConversation(ctx, "alice", first)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, conv.ParticipantIds)
	assert.Equal(t, map[string]int64{"alice": 0, "bob": 0}, conv.UnreadCount)
	assert.Nil(t, conv.LastMessage)
	assert.Equal(t, "Alice", conv.ParticipantNames["alice"])
	assert.Equal(t, "alice.png", conv.ParticipantAvatars["alice"])
	assert.Equal(t, "Bob", conv.ParticipantNames["bob"])
}

func TestGetOrCreateConversation_NamesNotRefreshed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.convs.GetOrCreateConversation(ctx, &GetOrCreateRequest{UserA: "alice", NameA: "Old", UserB: "bob"})
	require.NoError(t, err)
	_, err = f.convs.GetOrCreateConversation(ctx, &GetOrCreateRequest{UserA: "alice", NameA: "New", UserB: "bob"})
	require.NoError(t, err)

	conv, err := f.convs.GetConversation(ctx, "bob", id)
	require.NoError(t, err)
	assert.Equal(t, "Old", conv.ParticipantNames["alice"])
}

func TestGetOrCreateConversation_ResolvesPersona(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t, "alice", "ai_maya")

	conv, err := f.convs.GetConversation(context.Background(), "alice", id)
	require.NoError(t, err)
	assert.Equal(t, "Maya", conv.ParticipantNames["ai_maya"])
	assert.Equal(t, "maya.png", conv.ParticipantAvatars["ai_maya"])
}

func TestGetOrCreateConversation_InvalidIdentity(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  *GetOrCreateRequest
	}{
		{"nil request", nil},
		{"empty first", &GetOrCreateRequest{UserB: "bob"}},
		{"empty second", &GetOrCreateRequest{UserA: "alice"}},
		{"self chat", &GetOrCreateRequest{UserA: "alice", UserB: "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.convs.GetOrCreateConversation(context.Background(), tt.req)
			assert.ErrorIs(t, err, errcode.ErrIdentityInvalid)
		})
	}
}

func TestGetOrCreateConversation_ConcurrentCallsCreateOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := &GetOrCreateRequest{UserA: "alice", UserB: "bob"}
			if i%2 == 1 {
				req = &GetOrCreateRequest{UserA: "bob", UserB: "alice"}
			}
			id, err := f.convs.GetOrCreateConversation(ctx, req)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	convs, err := f.convs.ListConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 1)
	assert.Equal(t, []entity.ChangeKind{entity.ChangeConversation}, f.notifier.kinds())
}

func TestSendMessage_UpdatesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.conversation(t, "alice", "bob")
	f.notifier.reset()

	msg := f.send(t, id, "alice", "  hello there  ")
	assert.Equal(t, "hello there", msg.Content)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, "Alice", msg.SenderName)
	assert.Equal(t, "text", msg.Type)
	assert.False(t, msg.IsEdited)
	assert.True(t, msg.IsReadBy("alice"))
	assert.False(t, msg.IsReadBy("bob"))

	conv, err := f.convs.GetConversation(ctx, "bob", id)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "hello there", conv.LastMessage.Content)
	assert.Equal(t, "alice", conv.LastMessage.SenderId)
	assert.Equal(t, msg.Timestamp, conv.UpdatedAt)
	assert.Equal(t, int64(0), conv.UnreadCount["alice"])
	assert.Equal(t, int64(1), conv.UnreadCount["bob"])

	f.send(t, id, "alice", "second")
	f.send(t, id, "bob", "reply")
	conv, err = f.convs.GetConversation(ctx, "bob", id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), conv.UnreadCount["bob"])
	assert.Equal(t, int64(1), conv.UnreadCount["alice"])

	assert.Equal(t, []entity.ChangeKind{entity.ChangeMessage, entity.ChangeMessage, entity.ChangeMessage}, f.notifier.kinds())
	assert.Len(t, f.trigger.messages, 3)
}

func TestSendMessage_Validation(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t, "alice", "bob")
	f.conversation(t, "carol", "dave")

	tests := []struct {
		name string
		req  *SendMessageRequest
		want *errcode.Error
	}{
		{"nil request", nil, errcode.ErrInvalidParam},
		{"empty content", &SendMessageRequest{ConversationId: id, SenderId: "alice", Content: ""}, errcode.ErrEmptyContent},
		{"whitespace content", &SendMessageRequest{ConversationId: id, SenderId: "alice", Content: " \n\t "}, errcode.ErrEmptyContent},
		{"too long", &SendMessageRequest{ConversationId: id, SenderId: "alice", Content: strings.Repeat("é", 21)}, errcode.ErrContentTooLong},
		{"missing conversation", &SendMessageRequest{ConversationId: "si_x:y", SenderId: "alice", Content: "hi"}, errcode.ErrConvNotFound},
		{"not participant", &SendMessageRequest{ConversationId: id, SenderId: "carol", Content: "hi"}, errcode.ErrNotParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.msgs.SendMessage(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	messages, err := f.msgs.ListMessages(context.Background(), "alice", id)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestSendMessage_MaxLengthCountsRunes(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t, "alice", "bob")

	msg := f.send(t, id, "alice", strings.Repeat("é", 20))
	assert.Equal(t, 20, len([]rune(msg.Content)))
}

func TestSendMessage_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t, "alice", "bob")
	f.notifier.reset()

	f.mem.SetFailure(errors.New("connection refused"))
	_, err := f.msgs.SendMessage(context.Background(), &SendMessageRequest{ConversationId: id, SenderId: "alice", Content: "hi"})
	assert.ErrorIs(t, err, errcode.ErrStoreUnavailable)
	assert.Empty(t, f.notifier.kinds())
	assert.Empty(t, f.trigger.messages)
}

// deletingStore removes a conversation right before every unit of work,
// as a concurrent DeleteConversation would.
type deletingStore struct {
	*memstore.MemoryStore
	conversationId string
}

func (s deletingStore) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	if err := s.MemoryStore.Conversations().Delete(ctx, s.conversationId); err != nil {
		return err
	}
	return s.MemoryStore.Atomic(ctx, fn)
}

func TestSendMessage_ConversationDeletedDuringSend(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t, "alice", "bob")
	f.notifier.reset()

	msgs := NewMessageService(deletingStore{MemoryStore: f.mem, conversationId: id}, f.mem, 20)
	msgs.SetNotifier(f.notifier)
	_, err := msgs.SendMessage(context.Background(), &SendMessageRequest{ConversationId: id, SenderId: "alice", Content: "hi"})
	assert.ErrorIs(t, err, errcode.ErrConvNotFound)

	left, err := f.mem.Messages().ListByConversation(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Empty(t, f.notifier.kinds())
}

func TestListMessages_OrderedByTimestampThenSeq(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t, "alice", "bob")

	clock := []int64{1000, 1000, 500, 1000}
	i := 0
	f.msgs.now = func() int64 {
		ts := clock[i]
		i++
		return ts
	}
	for n := 0; n < len(clock); n++ {
		f.send(t, id, "alice", fmt.Sprintf("m%d", n))
	}

	messages, err := f.msgs.ListMessages(context.Background(), "bob", id)
	require.NoError(t, err)
	got := make([]string, 0, len(messages))
	for _, m := range messages {
		got = append(got, m.Content)
	}
	assert.Equal(t, []string{"m2", "m0", "m1", "m3"}, got)

	_, err = f.msgs.ListMessages(context.Background(), "carol", id)
	assert.ErrorIs(t, err, errcode.ErrNotParticipant)
}

func TestMarkMessagesAsRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.conversation(t, "alice", "bob")
	f.send(t, id, "alice", "one")
	f.send(t, id, "alice", "two")
	f.notifier.reset()

	require.NoError(t, f.msgs.MarkMessagesAsRead(ctx, id, "bob"))
	conv, err := f.convs.GetConversation(ctx, "bob", id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), conv.UnreadCount["bob"])

	messages, err := f.msgs.ListMessages(ctx, "bob", id)
	require.NoError(t, err)
	for _, m := range messages {
		assert.ElementsMatch(t, []string{"alice", "bob"}, []string(m.ReadBy))
	}
	assert.Equal(t, []entity.ChangeKind{entity.ChangeRead}, f.notifier.kinds())

	// second call changes nothing and stays quiet
	require.NoError(t, f.msgs.MarkMessagesAsRead(ctx, id, "bob"))
	assert.Len(t, f.notifier.kinds(), 1)

	assert.ErrorIs(t, f.msgs.MarkMessagesAsRead(ctx, id, "carol"), errcode.ErrNotParticipant)
	assert.ErrorIs(t, f.msgs.MarkMessagesAsRead(ctx, "si_none:x", "bob"), errcode.ErrConvNotFound)
}

func TestListConversationsForUser_OrderedByUpdatedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	withBob := f.conversation(t, "alice", "bob")
	withMaya := f.conversation(t, "alice", "ai_maya")

	ts := int64(10_000_000_000_000)
	f.msgs.now = func() int64 { ts++; return ts }
	f.send(t, withMaya, "alice", "first")
	f.send(t, withBob, "alice", "second")

	convs, err := f.convs.ListConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, withBob, convs[0].Id)
	assert.Equal(t, withMaya, convs[1].Id)

	convs, err = f.convs.ListConversationsForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, convs, 1)

	_, err = f.convs.ListConversationsForUser(ctx, "")
	assert.ErrorIs(t, err, errcode.ErrIdentityInvalid)
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.conversation(t, "alice", "bob")
	f.send(t, id, "alice", "hello")
	f.notifier.reset()

	assert.ErrorIs(t, f.convs.DeleteConversation(ctx, id, "carol"), errcode.ErrNotParticipant)
	assert.ErrorIs(t, f.convs.DeleteConversation(ctx, "si_none:x", "alice"), errcode.ErrConvNotFound)
	assert.Empty(t, f.notifier.kinds())

	require.NoError(t, f.convs.DeleteConversation(ctx, id, "bob"))
	assert.Equal(t, []entity.ChangeKind{entity.ChangeConversationDeleted}, f.notifier.kinds())

	_, err := f.convs.GetConversation(ctx, "alice", id)
	assert.ErrorIs(t, err, errcode.ErrConvNotFound)
	messages, err := f.mem.Messages().ListByConversation(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, messages)
	convs, err := f.convs.ListConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, convs)

	// the pair can start over with a fresh sequence
	id2 := f.conversation(t, "alice", "bob")
	assert.Equal(t, id, id2)
	msg := f.send(t, id2, "alice", "again")
	assert.Equal(t, int64(1), msg.Seq)
}

func TestPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.presence.GetUserOnlineStatus(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
	assert.Equal(t, "alice", p.UserId)

	require.NoError(t, f.presence.UpdateUserOnlineStatus(ctx, "alice", true))
	p, err = f.presence.GetUserOnlineStatus(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
	assert.NotZero(t, p.LastSeen)

	require.NoError(t, f.presence.UpdateUserOnlineStatus(ctx, "alice", false))
	p, err = f.presence.GetUserOnlineStatus(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, p.IsOnline)

	assert.Equal(t, []entity.ChangeKind{entity.ChangePresence, entity.ChangePresence}, f.notifier.kinds())
	assert.ErrorIs(t, f.presence.UpdateUserOnlineStatus(ctx, "", true), errcode.ErrIdentityInvalid)
}

func TestPresence_StaleAndHeartbeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)
	f.presence.staleAfter = time.Minute
	f.presence.now = func() time.Time { return now }

	require.NoError(t, f.presence.UpdateUserOnlineStatus(ctx, "bob", true))
	f.notifier.reset()

	require.NoError(t, f.presence.Heartbeat(ctx, "bob"))
	assert.Empty(t, f.notifier.kinds())

	now = now.Add(2 * time.Minute)
	p, err := f.presence.GetUserOnlineStatus(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, p.IsOnline)

	require.NoError(t, f.presence.Heartbeat(ctx, "bob"))
	assert.Equal(t, []entity.ChangeKind{entity.ChangePresence}, f.notifier.kinds())
	p, err = f.presence.GetUserOnlineStatus(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
	assert.Equal(t, now.UnixMilli(), p.LastSeen)
}

func TestIdentityService_Resolve(t *testing.T) {
	f := newFixture(t)
	identity := NewIdentityService(f.mem, staticPersonas{"maya": {"Maya", "maya.png"}})
	ctx := context.Background()

	info, err := identity.Resolve(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", info.DisplayName)
	assert.False(t, info.IsAI)

	info, err = identity.Resolve(ctx, "ai_maya")
	require.NoError(t, err)
	assert.Equal(t, "Maya", info.DisplayName)
	assert.True(t, info.IsAI)

	info, err = identity.Resolve(ctx, "ai_unknown")
	require.NoError(t, err)
	assert.Equal(t, "unknown", info.DisplayName)

	_, err = identity.Resolve(ctx, "ghost")
	assert.ErrorIs(t, err, errcode.ErrUserNotFound)
	_, err = identity.Resolve(ctx, "")
	assert.ErrorIs(t, err, errcode.ErrIdentityInvalid)
}

func TestSnapshotLoader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.conversation(t, "alice", "bob")
	f.send(t, id, "alice", "hi")
	require.NoError(t, f.presence.UpdateUserOnlineStatus(ctx, "bob", true))

	loader := NewSnapshotLoader(f.mem, f.presence)
	messages, err := loader.LoadMessages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	convs, err := loader.LoadConversations(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, convs, 1)

	p, err := loader.LoadPresence(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
}
