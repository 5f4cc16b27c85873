// Package mcp exposes the chat service as Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"agentdesk/internal/domain"
	"agentdesk/internal/usecase"
)

// ChatService is the subset of the application the MCP tools use.
type ChatService interface {
	SendMessage(ctx context.Context, in usecase.SendMessageInput) (*usecase.SendMessageOutput, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	Agents() []domain.AgentInfo
}

// Handlers implements the MCP tool callbacks.
type Handlers struct {
	chat   ChatService
	logger *slog.Logger
}

// NewServer creates an MCP server with every agentdesk tool registered.
func NewServer(version string, chat ChatService, logger *slog.Logger) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer("agentdesk", version, mcpserver.WithToolCapabilities(false))
	RegisterTools(server, chat, logger)
	return server
}

// RegisterTools registers the chat tools with server.
func RegisterTools(server *mcpserver.MCPServer, chat ChatService, logger *slog.Logger) *Handlers {
	h := &Handlers{chat: chat, logger: logger}

	server.AddTool(mcp.Tool{
		Name:        "send_message",
		Description: "Send a customer message to the support desk. It is routed to the order, billing or support agent and the reply is stored in the conversation.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "The customer's message",
				},
				"conversation_id": map[string]any{
					"type":        "string",
					"description": "Existing conversation to continue; omit to start a new one",
				},
				"user_id": map[string]any{
					"type":        "string",
					"description": "Customer id (default: user-1)",
				},
			},
			Required: []string{"message"},
		},
	}, h.SendMessage)

	server.AddTool(mcp.Tool{
		Name:        "list_agents",
		Description: "List the specialist agents and what they can do.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, h.ListAgents)

	server.AddTool(mcp.Tool{
		Name:        "list_conversations",
		Description: "List a customer's conversations, most recently updated first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"user_id": map[string]any{
					"type":        "string",
					"description": "Customer id (default: user-1)",
				},
			},
		},
	}, h.ListConversations)

	return h
}

type sendMessageResult struct {
	ConversationID string           `json:"conversation_id"`
	Reply          string           `json:"reply"`
	AgentType      domain.AgentType `json:"agent_type"`
	Reasoning      string           `json:"reasoning"`
	TokensUsed     int              `json:"tokens_used"`
}

// SendMessage handles the send_message tool.
func (h *Handlers) SendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message argument is required and must be a string"), nil
	}

	out, err := h.chat.SendMessage(ctx, usecase.SendMessageInput{
		Message:        message,
		ConversationID: request.GetString("conversation_id", ""),
		UserID:         request.GetString("user_id", ""),
	})
	if err != nil {
		return toolError(h.logger, err), nil
	}

	return jsonResult(sendMessageResult{
		ConversationID: out.ConversationID,
		Reply:          out.Result.Content,
		AgentType:      out.Result.AgentType,
		Reasoning:      out.Result.Reasoning,
		TokensUsed:     out.Result.TokensConsumed,
	})
}

// ListAgents handles the list_agents tool.
func (h *Handlers) ListAgents(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.chat.Agents())
}

// ListConversations handles the list_conversations tool.
func (h *Handlers) ListConversations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	convs, err := h.chat.ListConversations(ctx, request.GetString("user_id", ""))
	if err != nil {
		return toolError(h.logger, err), nil
	}
	return jsonResult(convs)
}

// toolError turns a service failure into an MCP error result. Quota
// failures keep their retry hint so the calling agent can back off.
func toolError(logger *slog.Logger, err error) *mcp.CallToolResult {
	var quota *domain.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		return mcp.NewToolResultError(fmt.Sprintf(
			"AI model rate limit exceeded (%s); retry after %d seconds", quota.Limit, quota.RetryAfterSeconds))
	case errors.Is(err, domain.ErrInvalidInput):
		return mcp.NewToolResultError("message is required")
	case errors.Is(err, domain.ErrConversationNotFound):
		return mcp.NewToolResultError("conversation not found")
	default:
		logger.Error("mcp tool failed", "code", domain.ErrorCodeOf(err), "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("request failed: %v", err))
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio runs server on stdin/stdout until ctx ends or the client
// disconnects.
func ServeStdio(ctx context.Context, server *mcpserver.MCPServer) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
