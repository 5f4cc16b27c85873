package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdesk/internal/domain"
)

func newTestLogger() *slog.Logger { return slog.Default() }

func strPtr(s string) *string { return &s }

// memCommerce is an in-memory CommerceStore.
type memCommerce struct {
	orders   []domain.Order
	payments []domain.Payment
	faqs     []domain.FAQ
	err      error
}

func (m *memCommerce) OrderByNumber(_ context.Context, number string) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.orders {
		if m.orders[i].OrderNumber == number {
			o := m.orders[i]
			return &o, nil
		}
	}
	return nil, domain.NewSubSystemError("order", "memCommerce.OrderByNumber", domain.ErrNotFound, number)
}

func (m *memCommerce) OrdersByUser(_ context.Context, userID string) ([]domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memCommerce) PaymentByOrder(_ context.Context, orderID string) (*domain.Payment, error) {
	for i := range m.payments {
		if m.payments[i].OrderID == orderID {
			p := m.payments[i]
			return &p, nil
		}
	}
	return nil, domain.NewSubSystemError("payment", "memCommerce.PaymentByOrder", domain.ErrNotFound, orderID)
}

func (m *memCommerce) SearchFAQs(_ context.Context, query string) ([]domain.FAQ, error) {
	var out []domain.FAQ
	for _, f := range m.faqs {
		if strings.Contains(f.Question, query) || strings.Contains(f.Answer, query) {
			out = append(out, f)
		}
	}
	return out, nil
}

func demoCommerce() *memCommerce {
	eta := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	return &memCommerce{
		orders: []domain.Order{
			{
				ID: "ord-1", UserID: "user-1", OrderNumber: "ORD-2024-001", Status: "shipped", Total: "299.00",
				Items:          []domain.OrderItem{{Name: "Wireless Headphones", Quantity: 1, Price: 299}},
				TrackingNumber: strPtr("TRK-998877"), EstimatedDelivery: &eta,
			},
			{
				ID: "ord-2", UserID: "user-2", OrderNumber: "ORD-2024-002", Status: "processing", Total: "1499.00",
				Items: []domain.OrderItem{{Name: "Mechanical Keyboard", Quantity: 1, Price: 999}},
			},
			{ID: "ord-3", UserID: "user-2", OrderNumber: "ORD-2024-003", Status: "pending", Total: "10.00"},
		},
		payments: []domain.Payment{
			{ID: "pay-1", OrderID: "ord-1", Amount: "299.00", Status: "completed", Method: "credit_card", InvoiceURL: strPtr("https://example.com/invoices/inv-001.pdf")},
			{ID: "pay-2", OrderID: "ord-2", Amount: "1499.00", Status: "pending", Method: "upi"},
			{ID: "pay-3", OrderID: "ord-3", Amount: "10.00", Status: "completed", Method: "upi"},
		},
		faqs: []domain.FAQ{
			{ID: "faq-ret-1", Question: "What is your return policy?", Answer: "Items can be returned within 30 days.", Category: "returns"},
			{ID: "faq-ship-1", Question: "How do I track my order?", Answer: "Use the tracking number.", Category: "shipping"},
		},
	}
}

// decode parses a tool result envelope.
func decode(t *testing.T, res *domain.ToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, res)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content), &out), res.Content)
	return out
}

func run(t *testing.T, reg *Registry, name, args string) (*domain.ToolResult, map[string]any) {
	t.Helper()
	tl, err := reg.Get(name)
	require.NoError(t, err)
	res, err := tl.Execute(context.Background(), json.RawMessage(args))
	require.NoError(t, err)
	return res, decode(t, res)
}

func newTestSets(t *testing.T, store domain.CommerceStore) *Sets {
	t.Helper()
	sets, err := NewSets(store, newTestLogger())
	require.NoError(t, err)
	return sets
}

// --- Registry ---

type mockTool struct {
	name string
}

func (m *mockTool) Name() string              { return m.name }
func (m *mockTool) Description() string       { return "mock" }
func (m *mockTool) Schema() domain.ToolSchema { return domain.ToolSchema{Name: m.name} }
func (m *mockTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	return &domain.ToolResult{Content: "ok"}, nil
}

func TestRegistryBasic(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&mockTool{name: "b"}))
	require.NoError(t, reg.Register(&mockTool{name: "a"}))

	got, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name())

	schemas := reg.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "a", schemas[0].Name)
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&mockTool{name: "x"}))
	assert.Error(t, reg.Register(&mockTool{name: "x"}))
}

func TestRegistryNotFound(t *testing.T) {
	_, err := NewRegistry(nil).Get("nonexistent")
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
	assert.Equal(t, domain.CodeToolNotFound, domain.ErrorCodeOf(err))
}

func TestSetsAreDisjoint(t *testing.T) {
	sets := newTestSets(t, demoCommerce())
	assert.Equal(t, []string{"checkDeliveryStatus", "fetchOrderDetails", "getUserOrders"}, sets.Order.Names())
	assert.Equal(t, []string{"checkRefundStatus", "getInvoiceDetails"}, sets.Billing.Names())
	assert.Equal(t, []string{"searchFAQs"}, sets.Support.Names())

	_, err := sets.Support.Get("fetchOrderDetails")
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

// --- Order tools ---

func TestFetchOrderDetails(t *testing.T) {
	sets := newTestSets(t, demoCommerce())
	res, out := run(t, sets.Order, "fetchOrderDetails", `{"orderNumber":"ORD-2024-001"}`)

	assert.False(t, res.IsError)
	assert.Equal(t, true, out["success"])
	data := out["data"].(map[string]any)
	assert.Equal(t, "shipped", data["status"])
	assert.Equal(t, "TRK-998877", data["trackingNumber"])
}

func TestFetchOrderDetailsNotFound(t *testing.T) {
	sets := newTestSets(t, demoCommerce())
	res, out := run(t, sets.Order, "fetchOrderDetails", `{"orderNumber":"ORD-1"}`)

	assert.False(t, res.IsError, "a miss is a successful call")
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Order not found", out["error"])
	assert.NotContains(t, out, "data")
}

func TestFetchOrderDetailsSchemaRejectsMissingField(t *testing.T) {
	sets := newTestSets(t, demoCommerce())
	res, out := run(t, sets.Order, "fetchOrderDetails", `{}`)

	assert.True(t, res.IsError)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "schema validation failed")
}

func TestFetchOrderDetailsStoreFailure(t *testing.T) {
	store := demoCommerce()
	store.err = errors.New("database is locked")
	sets := newTestSets(t, store)
	res, out := run(t, sets.Order, "fetchOrderDetails", `{"orderNumber":"ORD-2024-001"}`)

	assert.True(t, res.IsError)
	assert.Equal(t, "database is locked", out["error"])
	assert.Equal(t, true, out["retryable"])
}

func TestCheckDeliveryStatus(t *testing.T) {
	sets := newTestSets(t, demoCommerce())
	_, out := run(t, sets.Order, "checkDeliveryStatus", `{"orderNumber":"ORD-2024-002"}`)

	data := out["data"].(map[string]any)
	assert.Equal(t, "processing", data["status"])
	assert.Nil(t, data["trackingNumber"])
	assert.Contains(t, data, "estimatedDelivery")
}

func TestGetUserOrdersDefaultsToCurrentUser(t *testing.T) {
	sets := newTestSets(t, demoCommerce())
	_, out := run(t, sets.Order, "getUserOrders", `{}`)

	data := out["data"].(map[string]any)
	assert.EqualValues(t, 1, data["total"])
	orders := data["orders"].([]any)
	assert.Equal(t, "ORD-2024-001", orders[0].(map[string]any)["orderNumber"])
}

func TestGetUserOrdersEmpty(t *testing.T) {
	sets := newTestSets(t, demoCommerce())
	_, out := run(t, sets.Order, "getUserOrders", `{"userId":"nobody"}`)

	data := out["data"].(map[string]any)
	assert.EqualValues(t, 0, data["total"])
	assert.Equal(t, []any{}, data["orders"])
}

// --- Billing tools ---

func TestGetInvoiceDetails(t *testing.T) {
	sets := newTestSets(t, demoCommerce())
	_, out := run(t, sets.Billing, "getInvoiceDetails", `{"orderNumber":"ORD-2024-001"}`)

	data := out["data"].(map[string]any)
	assert.Equal(t, "pay-1", data["id"])
	assert.Equal(t, "https://example.com/invoices/inv-001.pdf", data["invoiceUrl"])
	items := data["items"].([]any)
	assert.Equal(t, "Wireless Headphones", items[0].(map[string]any)["name"])
}

func TestGetInvoiceDetailsPaymentMissing(t *testing.T) {
	store := demoCommerce()
	store.payments = nil
	sets := newTestSets(t, store)
	_, out := run(t, sets.Billing, "getInvoiceDetails", `{"orderNumber":"ORD-2024-001"}`)
	assert.Equal(t, "Payment not found", out["error"])

	_, out = run(t, sets.Billing, "checkRefundStatus", `{"orderNumber":"ORD-2024-001"}`)
	assert.Equal(t, "Payment info not found", out["error"])
}

func TestCheckRefundStatus(t *testing.T) {
	tests := []struct {
		order      string
		isRefunded bool
		canRefund  bool
		status     string
	}{
		{"ORD-2024-001", false, true, "completed"},
		{"ORD-2024-002", false, false, "pending"},
		{"ORD-2024-003", false, false, "completed"}, // order still pending
	}
	sets := newTestSets(t, demoCommerce())
	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			_, out := run(t, sets.Billing, "checkRefundStatus", `{"orderNumber":"`+tt.order+`"}`)
			data := out["data"].(map[string]any)
			assert.Equal(t, tt.isRefunded, data["isRefunded"])
			assert.Equal(t, tt.canRefund, data["canRefund"])
			assert.Equal(t, tt.status, data["status"])
		})
	}
}

func TestCheckRefundStatusRefunded(t *testing.T) {
	store := demoCommerce()
	store.payments[0].Status = "refunded"
	sets := newTestSets(t, store)
	_, out := run(t, sets.Billing, "checkRefundStatus", `{"orderNumber":"ORD-2024-001"}`)

	data := out["data"].(map[string]any)
	assert.Equal(t, true, data["isRefunded"])
	assert.Equal(t, false, data["canRefund"])
}

// --- Support tools ---

func TestSearchFAQs(t *testing.T) {
	sets := newTestSets(t, demoCommerce())
	_, out := run(t, sets.Support, "searchFAQs", `{"query":"return"}`)

	results := out["data"].(map[string]any)["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "faq-ret-1", results[0].(map[string]any)["id"])

	_, out = run(t, sets.Support, "searchFAQs", `{"query":"warranty"}`)
	assert.Equal(t, []any{}, out["data"].(map[string]any)["results"])
}

func TestSearchFAQsQueryTooLong(t *testing.T) {
	sets := newTestSets(t, demoCommerce())
	res, out := run(t, sets.Support, "searchFAQs", `{"query":"`+strings.Repeat("a", maxFAQQueryLen+1)+`"}`)
	assert.True(t, res.IsError)
	assert.Contains(t, out["error"], "exceeds maximum length")
}

func TestSearchFAQsBlankQuery(t *testing.T) {
	sets := newTestSets(t, demoCommerce())
	res, out := run(t, sets.Support, "searchFAQs", `{"query":"   "}`)
	assert.True(t, res.IsError)
	assert.Equal(t, "'query' is required", out["error"])
}
