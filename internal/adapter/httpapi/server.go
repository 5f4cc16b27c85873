package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"agentdesk/internal/domain"
	"agentdesk/internal/infra/middleware"
	"agentdesk/internal/usecase"
)

// maxBodyBytes caps chat request bodies.
const maxBodyBytes = 1 << 20

// ChatAPI is the application surface the HTTP handlers call.
type ChatAPI interface {
	SendMessage(ctx context.Context, in usecase.SendMessageInput) (*usecase.SendMessageOutput, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	Agents() []domain.AgentInfo
	Capabilities(agentType string) domain.AgentInfo
}

// Options configures the API handler.
type Options struct {
	TrustedProxies []string
	AllowedOrigins []string
	// Limiter gates /api/ by client IP; nil disables the gate.
	Limiter middleware.Limiter
	// RequestTimeout bounds one chat message, zero means no bound.
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Server exposes the chat service over JSON HTTP.
type Server struct {
	chat   ChatAPI
	opts   Options
	logger *slog.Logger
}

// New creates the API server.
func New(chat ChatAPI, opts Options, logger *slog.Logger) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{chat: chat, opts: opts, logger: logger}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/messages", s.handleSendMessage)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/agents/{type}/capabilities", s.handleCapabilities)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.AccessLog(s.logger),
		middleware.CORS(s.opts.AllowedOrigins),
		middleware.SecurityHeaders,
	}
	if s.opts.Limiter != nil {
		mws = append(mws, middleware.RateGuard(s.opts.Limiter, middleware.RateGuardConfig{
			TrustedProxies: s.opts.TrustedProxies,
			PathPrefix:     "/api/",
			Logger:         s.logger,
			Now:            s.opts.Now,
		}))
	}
	return middleware.Chain(mux, mws...)
}

type sendMessageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type sendMessageResponse struct {
	Success        bool                 `json:"success"`
	ConversationID string               `json:"conversationId"`
	Message        domain.StoredMessage `json:"message"`
	AgentType      domain.AgentType     `json:"agentType"`
	Reasoning      string               `json:"reasoning"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", domain.CodeInvalidInput)
			return
		}
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body", domain.CodeInvalidInput)
		return
	}

	ctx := r.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	out, err := s.chat.SendMessage(ctx, usecase.SendMessageInput{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
	})
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, sendMessageResponse{
		Success:        true,
		ConversationID: out.ConversationID,
		Message:        out.Message,
		AgentType:      out.Result.AgentType,
		Reasoning:      out.Result.Reasoning,
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.chat.ListConversations(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, convs)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.chat.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		s.writeChatError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, true)
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, s.chat.Agents())
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, s.chat.Capabilities(r.PathValue("type")))
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: s.opts.Now().UTC().Format(time.RFC3339Nano),
	})
}

// writeChatError maps service failures onto status codes. Provider quota
// failures carry their limit kind and retry hint to the client.
func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	var quota *domain.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		now := s.opts.Now()
		w.Header().Set("Retry-After", strconv.Itoa(quota.RetryAfterSeconds))
		middleware.WriteJSON(w, http.StatusTooManyRequests, middleware.ErrorResponse{
			Error: "AI Model Rate Limit Exceeded",
			Code:  string(domain.CodeRateLimit),
			Details: &middleware.LimitDetails{
				Message:           "We are experiencing high traffic. Please try again shortly.",
				LimitType:         string(quota.Limit),
				RetryAfterSeconds: quota.RetryAfterSeconds,
				RefreshTime:       quota.RefreshTime(now).UTC().Format(time.RFC3339Nano),
			},
		})
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, "Message is required", domain.CodeInvalidInput)
	case errors.Is(err, domain.ErrConversationNotFound):
		s.writeError(w, http.StatusNotFound, "Conversation not found", domain.CodeConversationNotFound)
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Not found", domain.ErrorCodeOf(err))
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("request timed out", "path", r.URL.Path, "request_id", middleware.RequestIDFrom(r.Context()))
		s.writeError(w, http.StatusGatewayTimeout, "The request took too long. Please try again.", domain.CodeTimeout)
	default:
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFrom(r.Context()),
			"code", domain.ErrorCodeOf(err),
			"error", err,
		)
		s.writeError(w, http.StatusInternalServerError, "Internal Server Error during AI processing", "")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string, code domain.ErrorCode) {
	middleware.WriteJSON(w, status, middleware.ErrorResponse{Error: msg, Code: string(code)})
}
