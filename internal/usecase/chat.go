package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"agentdesk/internal/domain"
)

const (
	defaultUserID       = "user-1"
	defaultHistoryLimit = 20
	titleRunes          = 50
)

// MessageHandler answers one user message given prior turns.
type MessageHandler interface {
	HandleMessage(ctx context.Context, message string, history []domain.Message) (domain.AgentResult, error)
}

// SendMessageInput is a user's chat message.
type SendMessageInput struct {
	Message        string
	ConversationID string
	UserID         string
}

// SendMessageOutput is the assistant's reply and where it was stored.
type SendMessageOutput struct {
	ConversationID string
	Message        domain.StoredMessage
	Result         domain.AgentResult
}

// ChatService persists conversations around the orchestrator.
type ChatService struct {
	store        domain.ConversationStore
	handler      MessageHandler
	profiles     map[domain.AgentType]AgentProfile
	historyLimit int
	logger       *slog.Logger
}

// NewChatService creates a ChatService. historyLimit <= 0 uses 20 turns.
func NewChatService(store domain.ConversationStore, handler MessageHandler, profiles map[domain.AgentType]AgentProfile, historyLimit int, logger *slog.Logger) *ChatService {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &ChatService{
		store:        store,
		handler:      handler,
		profiles:     profiles,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// SendMessage answers in.Message, creating a conversation when none is given.
// Turns are persisted only after the orchestrator succeeds.
func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, domain.NewDomainError("ChatService.SendMessage", domain.ErrInvalidInput, "message is required")
	}
	userID := in.UserID
	if userID == "" {
		userID = defaultUserID
	}

	convID := in.ConversationID
	if convID == "" {
		conv, err := s.store.CreateConversation(ctx, userID, conversationTitle(message))
		if err != nil {
			return nil, domain.WrapOp("ChatService.SendMessage", err)
		}
		convID = conv.ID
		s.logger.Info("conversation created", "conversation_id", convID, "user_id", userID)
	} else if _, err := s.store.GetConversation(ctx, convID); err != nil {
		return nil, domain.WrapOp("ChatService.SendMessage", err)
	}

	recent, err := s.store.RecentMessages(ctx, convID, s.historyLimit)
	if err != nil {
		return nil, domain.WrapOp("ChatService.SendMessage", err)
	}
	history := make([]domain.Message, len(recent))
	for i, m := range recent {
		history[len(recent)-1-i] = m.Turn()
	}

	result, err := s.handler.HandleMessage(ctx, message, history)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.AppendMessage(ctx, domain.StoredMessage{
		ConversationID: convID,
		Role:           domain.RoleUser,
		Content:        message,
	}); err != nil {
		return nil, domain.WrapOp("ChatService.SendMessage", err)
	}
	reply, err := s.store.AppendMessage(ctx, domain.StoredMessage{
		ConversationID: convID,
		Role:           domain.RoleAssistant,
		Content:        result.Content,
		AgentType:      string(result.AgentType),
		Reasoning:      result.Reasoning,
		TokensUsed:     result.TokensConsumed,
	})
	if err != nil {
		return nil, domain.WrapOp("ChatService.SendMessage", err)
	}
	if err := s.store.TouchConversation(ctx, convID); err != nil {
		return nil, domain.WrapOp("ChatService.SendMessage", err)
	}

	s.logger.Info("message answered",
		"conversation_id", convID,
		"agent", result.AgentType,
		"tokens", result.TokensConsumed,
	)
	return &SendMessageOutput{ConversationID: convID, Message: *reply, Result: result}, nil
}

// ListConversations returns a user's conversations, most recently updated first.
func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	if userID == "" {
		userID = defaultUserID
	}
	return s.store.ListConversations(ctx, userID)
}

// GetConversation returns a conversation with its messages, oldest first.
func (s *ChatService) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages(ctx, id)
	if err != nil {
		return nil, domain.WrapOp("ChatService.GetConversation", err)
	}
	conv.Messages = msgs
	return conv, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *ChatService) DeleteConversation(ctx context.Context, id string) error {
	return s.store.DeleteConversation(ctx, id)
}

// Agents lists the specialist agents with their summary capabilities.
func (s *ChatService) Agents() []domain.AgentInfo {
	out := make([]domain.AgentInfo, 0, len(domain.SpecialistAgents))
	for _, t := range domain.SpecialistAgents {
		p, ok := s.profiles[t]
		if !ok {
			continue
		}
		out = append(out, domain.AgentInfo{Type: t, Name: p.Name, Capabilities: p.Summary})
	}
	return out
}

// Capabilities describes agentType in detail. Unknown types describe the router.
func (s *ChatService) Capabilities(agentType string) domain.AgentInfo {
	if p, ok := s.profiles[domain.AgentType(agentType)]; ok {
		return domain.AgentInfo{Type: p.Type, Name: p.Name, Capabilities: p.Capabilities}
	}
	return domain.AgentInfo{
		Type:         domain.AgentType(agentType),
		Name:         fmt.Sprintf("%s Agent", capitalize(agentType)),
		Capabilities: routerCapabilities,
	}
}

// conversationTitle derives a title from the first message.
func conversationTitle(message string) string {
	if utf8.RuneCountInString(message) <= titleRunes {
		return message + "..."
	}
	return string([]rune(message)[:titleRunes]) + "..."
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return strings.ToUpper(string(r)) + s[size:]
}
