package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jacquesmats/CloneGPT/internal/core"
	"github.com/jacquesmats/CloneGPT/internal/store"
	apperrors "github.com/jacquesmats/CloneGPT/pkg/errors"
)

type contextKey string

const userContextKey contextKey = "user"

type APIHandler struct {
	authService *core.AuthService
	chatService *core.ChatService
	logger      *zap.Logger
}

func NewAPIHandler(as *core.AuthService, cs *core.ChatService, logger *zap.Logger) *APIHandler {
	return &APIHandler{authService: as, chatService: cs, logger: logger}
}

// AuthMiddleware resolves the bearer token into a user and stores it in
// the request context. Handlers behind it can assume a valid user.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.authService.Authenticate(bearerToken(r))
		if err != nil {
			h.writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

func userFromContext(r *http.Request) *store.User {
	user, _ := r.Context().Value(userContextKey).(*store.User)
	return user
}

// userResponse is the public shape of a user: id, username, email.
type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func newUserResponse(u *store.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidArg("invalid request body"))
		return
	}

	user, token, err := h.authService.Register(req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, authResponse{User: newUserResponse(user), Token: token})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidArg("invalid request body"))
		return
	}

	user, token, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, authResponse{User: newUserResponse(user), Token: token})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Logout(bearerToken(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, newUserResponse(userFromContext(r)))
}

type CreateConversationRequest struct {
	Title *string `json:"title,omitempty"`
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)

	// The body is optional: a bare POST creates an untitled conversation.
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.writeError(w, apperrors.InvalidArg("invalid request body"))
		return
	}

	conv, err := h.chatService.CreateConversation(user, req.Title)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, conv)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)

	conversations, err := h.chatService.ListConversations(user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if conversations == nil {
		conversations = []store.Conversation{}
	}
	h.writeJSON(w, http.StatusOK, conversations)
}

type ConversationDetailResponse struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	conversationID := chi.URLParam(r, "conversationID")

	conv, messages, err := h.chatService.GetConversation(user, conversationID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	h.writeJSON(w, http.StatusOK, ConversationDetailResponse{Conversation: conv, Messages: messages})
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	conversationID := chi.URLParam(r, "conversationID")

	if err := h.chatService.DeleteConversation(user, conversationID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AddMessageRequest struct {
	Content     string   `json:"content"`
	Role        string   `json:"role,omitempty"`
	Model       *string  `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type AddMessageResponse struct {
	UserMessage      *store.Message `json:"user_message"`
	AssistantMessage *store.Message `json:"assistant_message"`
}

func (h *APIHandler) AddMessageHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	conversationID := chi.URLParam(r, "conversationID")

	var req AddMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidArg("invalid request body"))
		return
	}

	userMsg, assistantMsg, err := h.chatService.AddMessage(r.Context(), user, conversationID, req.Content, req.Role, req.Model, req.Temperature)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, AddMessageResponse{UserMessage: userMsg, AssistantMessage: assistantMsg})
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError maps application error codes to HTTP statuses. Permission
// denials answer exactly like not-found so existence never leaks, and
// unknown errors answer 500 without internal detail.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	var status int
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidArgument, apperrors.CodeAlreadyExists:
		status = http.StatusBadRequest
	case apperrors.CodeUnauthenticated:
		status = http.StatusUnauthorized
	case apperrors.CodeNotFound, apperrors.CodePermissionDenied:
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
	}

	message := apperrors.MessageOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("internal error handling request", zap.Error(err))
		message = "internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
