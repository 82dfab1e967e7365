package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jacquesmats/CloneGPT/internal/config"
	"github.com/jacquesmats/CloneGPT/internal/core"
	"github.com/jacquesmats/CloneGPT/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	dbStore, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })

	logger := zap.NewNop()
	llmService := core.NewLLMService(&config.Config{MockLLM: true}, logger)
	authService := core.NewAuthService(dbStore, logger)
	chatService := core.NewChatService(dbStore, llmService, "gpt-4o-mini", logger)
	return NewRouter(NewAPIHandler(authService, chatService, logger))
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	}
	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func registerUser(t *testing.T, router http.Handler, username string) (authResponse, string) {
	t.Helper()
	rr := doRequest(t, router, http.MethodPost, "/api/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp authResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp, resp.Token
}

func TestRegisterEndpoint(t *testing.T) {
	router := newTestRouter(t)

	resp, token := registerUser(t, router, "alice")
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.Len(t, token, 40)

	// Duplicate username rejected with 400.
	rr := doRequest(t, router, http.MethodPost, "/api/register", "", map[string]string{
		"username": "alice", "email": "dup@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Missing password rejected with 400.
	rr = doRequest(t, router, http.MethodPost, "/api/register", "", map[string]string{
		"username": "bob", "email": "bob@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLoginEndpoint(t *testing.T) {
	router := newTestRouter(t)
	_, registerToken := registerUser(t, router, "alice")

	rr := doRequest(t, router, http.MethodPost, "/api/login", "", map[string]string{
		"username": "alice", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp authResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, registerToken, resp.Token)

	rr = doRequest(t, router, http.MethodPost, "/api/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, "invalid credentials", errResp["error"])
}

func TestLogoutEndpoint(t *testing.T) {
	router := newTestRouter(t)
	_, token := registerUser(t, router, "alice")

	rr := doRequest(t, router, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, router, http.MethodPost, "/api/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	// The token is gone: subsequent calls are unauthorized.
	rr = doRequest(t, router, http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMissingTokenUnauthorized(t *testing.T) {
	router := newTestRouter(t)

	rr := doRequest(t, router, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/api/conversations", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMeEndpoint(t *testing.T) {
	router := newTestRouter(t)
	resp, token := registerUser(t, router, "alice")

	rr := doRequest(t, router, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var me userResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&me))
	assert.Equal(t, resp.User.ID, me.ID)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "alice@example.com", me.Email)
}

func TestConversationCRUD(t *testing.T) {
	router := newTestRouter(t)
	_, token := registerUser(t, router, "alice")

	// Create with explicit title.
	rr := doRequest(t, router, http.MethodPost, "/api/conversations", token, map[string]string{"title": "Gopher talk"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var conv store.Conversation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&conv))
	require.NotNil(t, conv.Title)
	assert.Equal(t, "Gopher talk", *conv.Title)

	// Create untitled.
	rr = doRequest(t, router, http.MethodPost, "/api/conversations", token, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/api/conversations", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []store.Conversation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Len(t, list, 2)

	// Detail includes an (empty) message list.
	rr = doRequest(t, router, http.MethodGet, "/api/conversations/"+conv.ID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var detail ConversationDetailResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&detail))
	assert.Equal(t, conv.ID, detail.ID)
	assert.NotNil(t, detail.Messages)
	assert.Empty(t, detail.Messages)

	// Delete, then the conversation is gone.
	rr = doRequest(t, router, http.MethodDelete, "/api/conversations/"+conv.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/api/conversations/"+conv.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestForeignConversationLooksMissing(t *testing.T) {
	router := newTestRouter(t)
	_, aliceToken := registerUser(t, router, "alice")
	_, bobToken := registerUser(t, router, "bob")

	rr := doRequest(t, router, http.MethodPost, "/api/conversations", aliceToken, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var conv store.Conversation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&conv))

	foreign := doRequest(t, router, http.MethodGet, "/api/conversations/"+conv.ID, bobToken, nil)
	missing := doRequest(t, router, http.MethodGet, "/api/conversations/00000000-0000-0000-0000-000000000000", bobToken, nil)

	assert.Equal(t, http.StatusNotFound, foreign.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	// Byte-identical responses: no existence leak.
	assert.Equal(t, missing.Body.String(), foreign.Body.String())
}

func TestAddMessageEndpoint(t *testing.T) {
	router := newTestRouter(t)
	_, token := registerUser(t, router, "alice")

	rr := doRequest(t, router, http.MethodPost, "/api/conversations", token, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var conv store.Conversation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&conv))

	rr = doRequest(t, router, http.MethodPost, "/api/conversations/"+conv.ID+"/add_message", token, map[string]interface{}{
		"content": "What is a goroutine?",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp AddMessageResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotNil(t, resp.UserMessage)
	require.NotNil(t, resp.AssistantMessage)
	assert.Equal(t, "What is a goroutine?", resp.UserMessage.Content)
	assert.Contains(t, resp.AssistantMessage.Content, "What is a goroutine?")
	assert.True(t, resp.UserMessage.CreatedAt.Before(resp.AssistantMessage.CreatedAt))

	// Empty content rejected before anything is persisted.
	rr = doRequest(t, router, http.MethodPost, "/api/conversations/"+conv.ID+"/add_message", token, map[string]interface{}{
		"content": "",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Unknown conversation is a 404.
	rr = doRequest(t, router, http.MethodPost, "/api/conversations/missing-id/add_message", token, map[string]interface{}{
		"content": "hi",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// The exchange is reflected in the detail view: exactly two messages.
	rr = doRequest(t, router, http.MethodGet, "/api/conversations/"+conv.ID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var detail ConversationDetailResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&detail))
	assert.Len(t, detail.Messages, 2)
}

func TestConversationSerializationRoundTrip(t *testing.T) {
	router := newTestRouter(t)
	_, token := registerUser(t, router, "alice")

	rr := doRequest(t, router, http.MethodPost, "/api/conversations", token, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var conv store.Conversation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&conv))

	for _, content := range []string{"first", "second", "third"} {
		rr = doRequest(t, router, http.MethodPost, "/api/conversations/"+conv.ID+"/add_message", token, map[string]interface{}{
			"content": content,
		})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr = doRequest(t, router, http.MethodGet, "/api/conversations/"+conv.ID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var detail ConversationDetailResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&detail))
	require.Len(t, detail.Messages, 6) // three exchanges

	data, err := json.Marshal(detail)
	require.NoError(t, err)
	var decoded ConversationDetailResponse
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Len(t, decoded.Messages, len(detail.Messages))
	for i := range detail.Messages {
		assert.Equal(t, detail.Messages[i].ID, decoded.Messages[i].ID)
		assert.Equal(t, detail.Messages[i].Role, decoded.Messages[i].Role)
		assert.Equal(t, detail.Messages[i].Content, decoded.Messages[i].Content)
		assert.True(t, detail.Messages[i].CreatedAt.Equal(decoded.Messages[i].CreatedAt))
	}
}
