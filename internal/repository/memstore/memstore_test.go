package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/pkg/errcode"
)

func newConv(id string, updatedAt int64, users ...string) *entity.Conversation {
	return &entity.Conversation{
		Id:             id,
		ParticipantIds: users,
		UnreadCount:    map[string]int64{users[0]: 0, users[1]: 0},
		CreatedAt:      updatedAt,
		UpdatedAt:      updatedAt,
	}
}

func TestConversations_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Conversations().CreateIfAbsent(ctx, newConv("c1", 1, "a", "b"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Conversations().CreateIfAbsent(ctx, newConv("c1", 2, "a", "b"))
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.Conversations().Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CreatedAt)

	missing, err := s.Conversations().Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestConversations_ListByUserOrdersByUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, c := range []*entity.Conversation{
		newConv("old", 1, "a", "b"),
		newConv("new", 3, "a", "c"),
		newConv("mid", 2, "a", "d"),
		newConv("other", 9, "x", "y"),
	} {
		_, err := s.Conversations().CreateIfAbsent(ctx, c)
		require.NoError(t, err)
	}

	list, err := s.Conversations().ListByUser(ctx, "a")
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.Id)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
}

func TestMessages_ApplyMarkReadAndReset(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Conversations().CreateIfAbsent(ctx, newConv("c1", 1, "a", "b"))
	require.NoError(t, err)

	for i, ts := range []int64{10, 10, 5} {
		msg := &entity.Message{Id: string(rune('x' + i)), ConversationId: "c1", Seq: int64(i + 1), SenderId: "a", Timestamp: ts, ReadBy: []string{"a"}}
		require.NoError(t, s.Messages().Create(ctx, msg))
		require.NoError(t, s.Conversations().ApplyMessage(ctx, msg))
	}

	list, err := s.Messages().ListByConversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, int64(3), list[0].Seq)
	assert.Equal(t, int64(1), list[1].Seq)
	assert.Equal(t, int64(2), list[2].Seq)

	conv, _ := s.Conversations().Get(ctx, "c1")
	assert.Equal(t, int64(3), conv.UnreadCount["b"])
	assert.Equal(t, int64(0), conv.UnreadCount["a"])

	n, err := s.Messages().MarkRead(ctx, "c1", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = s.Messages().MarkRead(ctx, "c1", "b")
	require.NoError(t, err)
	assert.Zero(t, n)

	changed, err := s.Conversations().ResetUnread(ctx, "c1", "b")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.Conversations().ResetUnread(ctx, "c1", "b")
	require.NoError(t, err)
	assert.False(t, changed)

	recent, err := s.Messages().Recent(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(2), recent[1].Seq)
}

func TestConversations_ApplyMessageToMissingConversation(t *testing.T) {
	ctx := context.Background()
	s := New()

	msg := &entity.Message{Id: "m1", ConversationId: "gone", Seq: 1, SenderId: "a", Timestamp: 1}
	err := s.Conversations().ApplyMessage(ctx, msg)
	assert.ErrorIs(t, err, errcode.ErrConvNotFound)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.Conversations().CreateIfAbsent(ctx, newConv("c1", 1, "a", "b"))

	got, _ := s.Conversations().Get(ctx, "c1")
	got.UnreadCount["b"] = 99

	again, _ := s.Conversations().Get(ctx, "c1")
	assert.Equal(t, int64(0), again.UnreadCount["b"])
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("unavailable")
	s.SetFailure(boom)

	_, err := s.Conversations().Get(ctx, "c1")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Ping(ctx), boom)

	s.SetFailure(nil)
	assert.NoError(t, s.Ping(ctx))
}

func TestSeqAndPresence(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, _ := s.AllocSeq(ctx, "c1")
	second, _ := s.AllocSeq(ctx, "c1")
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	require.NoError(t, s.Release(ctx, "c1"))
	again, _ := s.AllocSeq(ctx, "c1")
	assert.Equal(t, int64(1), again)

	p, err := s.Presence().Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, p)
	require.NoError(t, s.Presence().Upsert(ctx, &entity.Presence{UserId: "a", IsOnline: true, LastSeen: 5}))
	p, _ = s.Presence().Get(ctx, "a")
	assert.True(t, p.IsOnline)
}
