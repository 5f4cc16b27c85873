package usecase

import "agentdesk/internal/domain"

// AgentProfile is the fixed configuration of one specialist agent.
type AgentProfile struct {
	Type         domain.AgentType
	Name         string
	SystemPrompt string
	// Summary is the short capability list shown in agent listings.
	Summary []string
	// Capabilities is the detailed capability list.
	Capabilities []string
	Tools        domain.ToolExecutor
}

// DefaultProfiles returns the three specialist agents bound to the given tool
// sets. Tool sets must be disjoint.
func DefaultProfiles(orderTools, billingTools, supportTools domain.ToolExecutor) map[domain.AgentType]AgentProfile {
	return map[domain.AgentType]AgentProfile{
		domain.AgentSupport: {
			Type:         domain.AgentSupport,
			Name:         "Support Agent",
			SystemPrompt: "You are a General Support Agent.",
			Summary:      []string{"General questions", "FAQs"},
			Capabilities: []string{"Answer general questions", "Provide FAQs"},
			Tools:        supportTools,
		},
		domain.AgentOrder: {
			Type:         domain.AgentOrder,
			Name:         "Order Agent",
			SystemPrompt: "You are an Order Support Agent.",
			Summary:      []string{"Order status", "Tracking"},
			Capabilities: []string{"Check order status", "Track deliveries"},
			Tools:        orderTools,
		},
		domain.AgentBilling: {
			Type:         domain.AgentBilling,
			Name:         "Billing Agent",
			SystemPrompt: "You are a Billing Support Agent.",
			Summary:      []string{"Invoices", "Refunds"},
			Capabilities: []string{"View invoices", "Process refunds"},
			Tools:        billingTools,
		},
	}
}

// routerCapabilities describe the router for any non-specialist type.
var routerCapabilities = []string{"Route queries", "Fallback"}
