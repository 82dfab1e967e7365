package core

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/jacquesmats/CloneGPT/internal/store"
	apperrors "github.com/jacquesmats/CloneGPT/pkg/errors"
)

const defaultTemperature = 0.7

// ChatService implements the conversation CRUD and the message
// exchange. Every operation takes the authenticated user explicitly;
// nothing here trusts ambient request state.
type ChatService struct {
	dbStore           *store.SQLiteStore
	llmService        *LLMService
	logger            *zap.Logger
	defaultDeployment string
}

func NewChatService(db *store.SQLiteStore, llm *LLMService, defaultDeployment string, logger *zap.Logger) *ChatService {
	return &ChatService{
		dbStore:           db,
		llmService:        llm,
		logger:            logger,
		defaultDeployment: defaultDeployment,
	}
}

func (s *ChatService) CreateConversation(user *store.User, title *string) (*store.Conversation, error) {
	conv, err := s.dbStore.CreateConversation(user.ID, title)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to create conversation", err)
	}
	return conv, nil
}

func (s *ChatService) ListConversations(user *store.User) ([]store.Conversation, error) {
	conversations, err := s.dbStore.GetConversationsByUserID(user.ID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to list conversations", err)
	}
	return conversations, nil
}

func (s *ChatService) GetConversation(user *store.User, conversationID string) (*store.Conversation, []store.Message, error) {
	conv, err := s.resolveConversation(user, conversationID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.dbStore.GetMessagesByConversationID(conversationID)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeInternal, "failed to load messages", err)
	}
	return conv, messages, nil
}

func (s *ChatService) DeleteConversation(user *store.User, conversationID string) error {
	if _, err := s.resolveConversation(user, conversationID); err != nil {
		return err
	}
	if err := s.dbStore.DeleteConversation(conversationID); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "failed to delete conversation", err)
	}
	return nil
}

// AddMessage appends the user's message, asks the LLM for a reply with
// the full conversation history as context, and appends that reply.
// The user message is durable before the provider call is attempted;
// provider failures surface as a canned assistant reply, never as an
// error. Concurrent appends to one conversation are read-then-append:
// each call sends whatever history existed at read time.
func (s *ChatService) AddMessage(ctx context.Context, user *store.User, conversationID, content, role string, modelName *string, temperature *float64) (*store.Message, *store.Message, error) {
	conv, err := s.resolveConversation(user, conversationID)
	if err != nil {
		return nil, nil, err
	}

	if content == "" {
		return nil, nil, apperrors.ErrEmptyContent
	}
	if role == "" {
		role = store.RoleUser
	}
	if role != store.RoleUser && role != store.RoleAssistant {
		return nil, nil, apperrors.ErrInvalidRole
	}

	deployment := s.defaultDeployment
	if modelName != nil && *modelName != "" {
		deployment = *modelName
	}
	temp := defaultTemperature
	if temperature != nil {
		temp = *temperature
	}

	userMsg := store.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Model:          &deployment,
		Temperature:    &temp,
	}
	if err := s.dbStore.CreateMessage(&userMsg); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeInternal, "failed to store user message", err)
	}
	if err := s.dbStore.TouchConversation(conversationID); err != nil {
		s.logger.Warn("failed to bump conversation timestamp", zap.String("conversation_id", conversationID), zap.Error(err))
	}

	// First message of an untitled conversation names it.
	if conv.Title == nil || *conv.Title == "" {
		title := GenerateTitle(content)
		if err := s.dbStore.UpdateConversationTitle(conversationID, title); err != nil {
			s.logger.Warn("failed to set conversation title", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}

	// Reload the full ordered history, including the message just
	// saved, and hand it to the provider oldest first.
	messages, err := s.dbStore.GetMessagesByConversationID(conversationID)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeInternal, "failed to load history", err)
	}
	history := make([]ChatTurn, 0, len(messages))
	for _, msg := range messages {
		history = append(history, ChatTurn{Role: msg.Role, Content: msg.Content})
	}

	assistantContent := s.llmService.GenerateResponse(ctx, history, deployment, temp)

	assistantMsg := store.Message{
		ConversationID: conversationID,
		Role:           store.RoleAssistant,
		Content:        assistantContent,
		Model:          &deployment,
		Temperature:    &temp,
	}
	if err := s.dbStore.CreateMessage(&assistantMsg); err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeInternal, "failed to store assistant message", err)
	}
	if err := s.dbStore.TouchConversation(conversationID); err != nil {
		s.logger.Warn("failed to bump conversation timestamp", zap.String("conversation_id", conversationID), zap.Error(err))
	}

	return &userMsg, &assistantMsg, nil
}

// GenerateTitle derives a conversation title from message content: the
// first sentence, truncated to 30 characters, with a trailing
// ellipsis. Empty content falls back to a default.
func GenerateTitle(content string) string {
	if content == "" {
		return "New conversation"
	}
	title := strings.SplitN(content, ".", 2)[0]
	if runes := []rune(title); len(runes) > 30 {
		title = string(runes[:30])
	}
	return title + "..."
}

// resolveConversation authorizes access. A conversation owned by
// someone else is reported to clients exactly like a missing one; only
// the error code (and therefore the logs) differ.
func (s *ChatService) resolveConversation(user *store.User, conversationID string) (*store.Conversation, error) {
	conv, err := s.dbStore.GetConversationByID(conversationID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to get conversation", err)
	}
	if conv == nil {
		return nil, apperrors.ErrConversationNotFound
	}
	if conv.UserID != user.ID {
		return nil, apperrors.ErrConversationForbidden
	}
	return conv, nil
}
