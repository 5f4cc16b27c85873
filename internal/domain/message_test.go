package domain

import (
	"testing"
	"time"
)

func TestUsageAdd(t *testing.T) {
	var u Usage
	u.Add(Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	u.Add(Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	if u.TotalTokens != 18 || u.PromptTokens != 11 || u.CompletionTokens != 7 {
		t.Errorf("usage = %+v", u)
	}
}

func TestStoredMessageTurn(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := StoredMessage{ID: "m1", Role: RoleAssistant, Content: "hi", AgentType: "order", Timestamp: ts}
	turn := m.Turn()
	if turn.Role != RoleAssistant || turn.Content != "hi" || !turn.Timestamp.Equal(ts) {
		t.Errorf("turn = %+v", turn)
	}
}

func TestAgentTypeIsSpecialist(t *testing.T) {
	for _, a := range SpecialistAgents {
		if !a.IsSpecialist() {
			t.Errorf("%s should be a specialist", a)
		}
	}
	if AgentRouter.IsSpecialist() || AgentType("sales").IsSpecialist() {
		t.Error("router and unknown types are not specialists")
	}
}
