package domain

import "time"

// AgentType identifies a specialist agent, or the router itself.
type AgentType string

const (
	AgentSupport AgentType = "support"
	AgentOrder   AgentType = "order"
	AgentBilling AgentType = "billing"
	AgentRouter  AgentType = "router"
)

// SpecialistAgents lists the agents a message can be routed to, in display order.
var SpecialistAgents = []AgentType{AgentSupport, AgentOrder, AgentBilling}

// IsSpecialist reports whether t names a routable specialist agent.
func (t AgentType) IsSpecialist() bool {
	switch t {
	case AgentSupport, AgentOrder, AgentBilling:
		return true
	}
	return false
}

// RoutingKind is the router's verdict.
type RoutingKind string

const (
	RouteToAgent RoutingKind = "route"
	RouteClarify RoutingKind = "clarify"
)

// RoutingDecision is the output of the routing step.
// TargetAgent is set only when Kind is RouteToAgent; ClarifyingMessage only
// when Kind is RouteClarify.
type RoutingDecision struct {
	Kind              RoutingKind `json:"kind"`
	TargetAgent       AgentType   `json:"target_agent,omitempty"`
	Reasoning         string      `json:"reasoning"`
	ClarifyingMessage string      `json:"clarifying_message,omitempty"`
	TokensConsumed    int         `json:"tokens_consumed"`
}

// AgentResult is the outcome of handling one user message.
type AgentResult struct {
	Content        string    `json:"content"`
	AgentType      AgentType `json:"agent_type"`
	Reasoning      string    `json:"reasoning"`
	TokensConsumed int       `json:"tokens_consumed"`
}

// AgentInfo describes an agent for listings.
type AgentInfo struct {
	Type         AgentType `json:"type"`
	Name         string    `json:"name"`
	Capabilities []string  `json:"capabilities"`
}

// RateDecision is the verdict of an admission check.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}
