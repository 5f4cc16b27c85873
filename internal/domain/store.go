package domain

import (
	"context"
	"time"
)

// User is a customer account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is a persisted chat thread.
type Conversation struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Messages  []StoredMessage `json:"messages,omitempty"`
}

// StoredMessage is a persisted conversation turn with its routing metadata.
type StoredMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	AgentType      string    `json:"agentType,omitempty"`
	Reasoning      string    `json:"reasoning,omitempty"`
	TokensUsed     int       `json:"tokensUsed"`
	Timestamp      time.Time `json:"timestamp"`
}

// Turn converts a stored message into the model-facing form.
func (m StoredMessage) Turn() Message {
	return Message{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
}

// OrderItem is one line of an order.
type OrderItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is a customer order.
type Order struct {
	ID                string      `json:"id"`
	UserID            string      `json:"userId"`
	OrderNumber       string      `json:"orderNumber"`
	Status            string      `json:"status"`
	Total             string      `json:"total"`
	Items             []OrderItem `json:"items"`
	TrackingNumber    *string     `json:"trackingNumber"`
	EstimatedDelivery *time.Time  `json:"estimatedDelivery"`
	CreatedAt         time.Time   `json:"createdAt"`
}

// Payment is the payment record attached to an order.
type Payment struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	OrderID    string     `json:"orderId"`
	Amount     string     `json:"amount"`
	Status     string     `json:"status"`
	Method     string     `json:"method"`
	InvoiceURL *string    `json:"invoiceUrl"`
	CreatedAt  time.Time  `json:"createdAt"`
	RefundedAt *time.Time `json:"refundedAt"`
}

// FAQ is a knowledge-base entry.
type FAQ struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, title string) (*Conversation, error)
	// GetConversation returns ErrConversationNotFound for unknown ids.
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	// RecentMessages returns up to limit messages, most recent first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]StoredMessage, error)
	// Messages returns every message of a conversation, oldest first.
	Messages(ctx context.Context, conversationID string) ([]StoredMessage, error)
	AppendMessage(ctx context.Context, msg StoredMessage) (*StoredMessage, error)
	TouchConversation(ctx context.Context, id string) error
}

// CommerceStore answers the order, billing and FAQ lookups agent tools make.
// Lookups of missing records return a DomainError wrapping ErrNotFound.
type CommerceStore interface {
	OrderByNumber(ctx context.Context, orderNumber string) (*Order, error)
	OrdersByUser(ctx context.Context, userID string) ([]Order, error)
	PaymentByOrder(ctx context.Context, orderID string) (*Payment, error)
	SearchFAQs(ctx context.Context, query string) ([]FAQ, error)
}
