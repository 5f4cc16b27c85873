package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"agentdesk/internal/domain"
)

// --- Mocks ---

type mockInvoker struct {
	mu sync.Mutex

	structured    []domain.StructuredResult
	structuredErr error
	tool          []domain.ToolRunResult
	toolErr       error

	structuredReqs []domain.StructuredRequest
	toolReqs       []domain.ToolRequest
}

func (m *mockInvoker) GenerateStructured(ctx context.Context, req domain.StructuredRequest) (*domain.StructuredResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structuredReqs = append(m.structuredReqs, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.structuredErr != nil {
		return nil, m.structuredErr
	}
	if len(m.structured) == 0 {
		return nil, fmt.Errorf("mock: no structured response scripted")
	}
	res := m.structured[0]
	m.structured = m.structured[1:]
	return &res, nil
}

func (m *mockInvoker) GenerateWithTools(ctx context.Context, req domain.ToolRequest) (*domain.ToolRunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolReqs = append(m.toolReqs, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.toolErr != nil {
		return nil, m.toolErr
	}
	if len(m.tool) == 0 {
		return &domain.ToolRunResult{Text: "fallback"}, nil
	}
	res := m.tool[0]
	m.tool = m.tool[1:]
	return &res, nil
}

// routeTo scripts a structured router response.
func routeTo(raw string, tokens int) domain.StructuredResult {
	return domain.StructuredResult{Object: json.RawMessage(raw), Usage: domain.Usage{TotalTokens: tokens}}
}

type mockToolExecutor struct {
	name    string
	schemas []domain.ToolSchema
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	return nil, fmt.Errorf("%s: %w", name, domain.ErrToolNotFound)
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema { return m.schemas }

func testProfiles() map[domain.AgentType]AgentProfile {
	return DefaultProfiles(
		&mockToolExecutor{name: "order"},
		&mockToolExecutor{name: "billing"},
		&mockToolExecutor{name: "support"},
	)
}

// memStore is an in-memory domain.ConversationStore.
type memStore struct {
	mu       sync.Mutex
	seq      int
	convs    map[string]*domain.Conversation
	messages map[string][]domain.StoredMessage
	touched  []string
}

func newMemStore() *memStore {
	return &memStore{convs: map[string]*domain.Conversation{}, messages: map[string][]domain.StoredMessage{}}
}

func (s *memStore) CreateConversation(_ context.Context, userID, title string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	now := time.Unix(int64(s.seq), 0)
	c := &domain.Conversation{ID: fmt.Sprintf("conv-%d", s.seq), UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}
	s.convs[c.ID] = c
	return c, nil
}

func (s *memStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, domain.NewSubSystemError("conversation", "memStore.GetConversation", domain.ErrConversationNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) ListConversations(_ context.Context, userID string) ([]domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Conversation
	for _, c := range s.convs {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *memStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return domain.ErrConversationNotFound
	}
	delete(s.convs, id)
	delete(s.messages, id)
	return nil
}

func (s *memStore) RecentMessages(_ context.Context, id string, limit int) ([]domain.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[id]
	var out []domain.StoredMessage
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *memStore) Messages(_ context.Context, id string) ([]domain.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.StoredMessage(nil), s.messages[id]...), nil
}

func (s *memStore) AppendMessage(_ context.Context, msg domain.StoredMessage) (*domain.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg.ID = fmt.Sprintf("msg-%d", s.seq)
	msg.Timestamp = time.Unix(int64(s.seq), 0)
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return &msg, nil
}

func (s *memStore) TouchConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

func newTestLogger() *slog.Logger { return slog.Default() }

// newTestPipeline wires an orchestrator around inv with default settings.
func newTestPipeline(inv domain.ModelInvoker) *Orchestrator {
	logger := newTestLogger()
	classifier := NewErrorClassifier(logger)
	dispatcher, err := NewDispatcher(inv, testProfiles(), classifier, 0, logger)
	if err != nil {
		panic(err)
	}
	return NewOrchestrator(
		NewCompactor(CompactionConfig{}, nil, logger),
		NewRouter(inv, classifier, logger),
		dispatcher,
		logger,
	)
}
