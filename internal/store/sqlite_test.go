package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)

	user, err := s.CreateUser("alice", "alice@example.com", "hash")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotZero(t, user.ID)

	found, err := s.GetUserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)

	missing, err := s.GetUserByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateUser("alice", "alice@example.com", "hash")
	require.NoError(t, err)

	_, err = s.CreateUser("alice", "other@example.com", "hash")
	assert.Error(t, err)
}

func TestTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("alice", "alice@example.com", "hash")
	require.NoError(t, err)

	require.NoError(t, s.CreateToken("tok-123", user.ID))

	resolved, err := s.GetUserByToken("tok-123")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, user.ID, resolved.ID)

	key, err := s.GetTokenByUserID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", key)

	deleted, err := s.DeleteToken("tok-123")
	require.NoError(t, err)
	assert.True(t, deleted)

	resolved, err = s.GetUserByToken("tok-123")
	require.NoError(t, err)
	assert.Nil(t, resolved)

	deleted, err = s.DeleteToken("tok-123")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestConversationListingOrder(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("alice", "alice@example.com", "hash")
	require.NoError(t, err)

	first, err := s.CreateConversation(user.ID, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.CreateConversation(user.ID, nil)
	require.NoError(t, err)

	conversations, err := s.GetConversationsByUserID(user.ID)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, second.ID, conversations[0].ID)

	// Touching the older conversation moves it back to the front.
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.TouchConversation(first.ID))

	conversations, err = s.GetConversationsByUserID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, conversations[0].ID)
}

func TestGetConversationByIDMissing(t *testing.T) {
	s := newTestStore(t)

	conv, err := s.GetConversationByID("no-such-id")
	require.NoError(t, err)
	assert.Nil(t, conv)
}

func TestMessageOrderingAndFields(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("alice", "alice@example.com", "hash")
	require.NoError(t, err)
	conv, err := s.CreateConversation(user.ID, nil)
	require.NoError(t, err)

	model := "gpt-4o-mini"
	temp := 0.7
	for _, content := range []string{"one", "two", "three"} {
		msg := Message{ConversationID: conv.ID, Role: RoleUser, Content: content, Model: &model, Temperature: &temp}
		require.NoError(t, s.CreateMessage(&msg))
		assert.NotEmpty(t, msg.ID)
		time.Sleep(time.Millisecond)
	}

	messages, err := s.GetMessagesByConversationID(conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0].Content)
	assert.Equal(t, "three", messages[2].Content)
	assert.True(t, messages[0].CreatedAt.Before(messages[2].CreatedAt))

	require.NotNil(t, messages[0].Model)
	assert.Equal(t, "gpt-4o-mini", *messages[0].Model)
	require.NotNil(t, messages[0].Temperature)
	assert.InDelta(t, 0.7, *messages[0].Temperature, 1e-9)
}

func TestDeleteConversationCascades(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("alice", "alice@example.com", "hash")
	require.NoError(t, err)
	conv, err := s.CreateConversation(user.ID, nil)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		msg := Message{ConversationID: conv.ID, Role: RoleUser, Content: "hello"}
		require.NoError(t, s.CreateMessage(&msg))
	}

	require.NoError(t, s.DeleteConversation(conv.ID))

	gone, err := s.GetConversationByID(conv.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	messages, err := s.GetMessagesByConversationID(conv.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
