package chat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/ceylontrails/tourchat/internal/model/chat"
	chat "github.com/ceylontrails/tourchat/internal/service/chat"
)

func TestServiceConversationLifecycle(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", "  ", "heritage")
	require.NoError(t, err)
	assert.Equal(t, "New trip", conv.Title)
	assert.Equal(t, "heritage", conv.GuideID)

	stored, err := svc.AppendMessage(ctx, conv.ID, model.Message{RequestText: "Hi", ResponseText: "Ayubowan", Pending: true})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, conv.ID, stored.ConversationID)
	assert.False(t, stored.Pending)
	assert.False(t, stored.Timestamp.IsZero())

	got, err := svc.GetConversation(ctx, "alice", conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Ayubowan", got.Messages[0].ResponseText)

	require.NoError(t, svc.DeleteConversation(ctx, "alice", conv.ID))
	_, err = svc.GetConversation(ctx, "alice", conv.ID)
	assert.ErrorIs(t, err, chat.ErrConversationNotFound)
	_, err = svc.LoadTranscript(ctx, conv.ID)
	assert.ErrorIs(t, err, chat.ErrConversationNotFound)
}

func TestServiceOwnership(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "", "Trip", "")
	assert.ErrorIs(t, err, chat.ErrOwnerRequired)

	conv, err := svc.CreateConversation(ctx, "alice", "Trip", "")
	require.NoError(t, err)

	_, err = svc.GetConversation(ctx, "bob", conv.ID)
	assert.ErrorIs(t, err, chat.ErrForbidden)
	assert.ErrorIs(t, svc.DeleteConversation(ctx, "bob", conv.ID), chat.ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, "bob", conv.ID), chat.ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, "alice", conv.ID))

	bobs, err := svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bobs)
}

func TestServiceListOrdersByActivity(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	first, err := svc.CreateConversation(ctx, "alice", "Kandy", "")
	require.NoError(t, err)
	second, err := svc.CreateConversation(ctx, "alice", "Galle", "")
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, first.ID, model.Message{RequestText: "temple hours?"})
	require.NoError(t, err)

	list, err := svc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Empty(t, list[0].Messages)
}

func TestServiceGuestSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	conv, err := svc.EnsureGuestSession(ctx, "guest-123")
	require.NoError(t, err)
	assert.Equal(t, "guest-123", conv.ID)
	assert.Empty(t, conv.OwnerID)

	again, err := svc.EnsureGuestSession(ctx, "guest-123")
	require.NoError(t, err)
	assert.Equal(t, conv.CreatedAt, again.CreatedAt)

	owned, err := svc.CreateConversation(ctx, "alice", "Trip", "")
	require.NoError(t, err)
	_, err = svc.EnsureGuestSession(ctx, owned.ID)
	assert.ErrorIs(t, err, chat.ErrForbidden)

	_, err = svc.EnsureGuestSession(ctx, "")
	assert.Error(t, err)
}
