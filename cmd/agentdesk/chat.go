package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"agentdesk/internal/domain"
	"agentdesk/internal/usecase"
)

const chatWrapWidth = 80

var agentColors = map[domain.AgentType]lipgloss.Color{
	domain.AgentRouter:  lipgloss.Color("245"),
	domain.AgentSupport: lipgloss.Color("39"),
	domain.AgentOrder:   lipgloss.Color("214"),
	domain.AgentBilling: lipgloss.Color("42"),
}

var (
	reasoningStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

type chatOptions struct {
	conversationID string
	userID         string
	plain          bool
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	chatOpts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message and print the agent's reply",
		Example: `  agentdesk chat "Where is my order ORD-2024-001?"
  agentdesk chat --conversation conv-1 "Can I get a refund?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.chat.SendMessage(cmd.Context(), usecase.SendMessageInput{
				Message:        strings.Join(args, " "),
				ConversationID: chatOpts.conversationID,
				UserID:         chatOpts.userID,
			})
			if err != nil {
				return chatError(err)
			}
			return printReply(cmd.OutOrStdout(), out, chatOpts.plain)
		},
	}

	cmd.Flags().StringVar(&chatOpts.conversationID, "conversation", "", "continue an existing conversation")
	cmd.Flags().StringVar(&chatOpts.userID, "user", "", "customer id (default user-1)")
	cmd.Flags().BoolVar(&chatOpts.plain, "plain", false, "print the reply without markdown rendering")
	return cmd
}

// agentLabel renders the "[agent]" prefix in the agent's color.
func agentLabel(agent domain.AgentType) string {
	color, ok := agentColors[agent]
	if !ok {
		color = lipgloss.Color("245")
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render("[" + string(agent) + "]")
}

func printReply(w io.Writer, out *usecase.SendMessageOutput, plain bool) error {
	body := out.Result.Content
	if !plain {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(chatWrapWidth),
		)
		if err != nil {
			return fmt.Errorf("markdown renderer: %w", err)
		}
		if rendered, err := r.Render(body); err == nil {
			body = rendered
		}
	}

	fmt.Fprintf(w, "%s %s\n", agentLabel(out.Result.AgentType), out.ConversationID)
	fmt.Fprintln(w, strings.TrimRight(body, "\n"))
	if out.Result.Reasoning != "" {
		fmt.Fprintln(w, reasoningStyle.Render(out.Result.Reasoning))
	}
	return nil
}

func chatError(err error) error {
	var quota *domain.QuotaExceededError
	if errors.As(err, &quota) {
		return errors.New(errorStyle.Render(fmt.Sprintf(
			"AI model rate limit exceeded (%s). Try again in %d seconds.", quota.Limit, quota.RetryAfterSeconds)))
	}
	return err
}
