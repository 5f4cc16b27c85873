package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentdesk/internal/domain"
)

type seedUser struct{ id, name, email string }

type seedConversation struct{ id, userID, title string }

type seedMessage struct {
	id, conversationID, role, content, agentType, reasoning string
	tokens                                                  int
}

type seedOrder struct {
	id, userID, number, status, total string
	items                             []domain.OrderItem
	tracking                          *string
	deliveryIn                        time.Duration
}

type seedPayment struct {
	id, userID, orderID, amount, status, method string
	invoiceURL                                  *string
}

func strPtr(s string) *string { return &s }

const day = 24 * time.Hour

var (
	seedUsers = []seedUser{
		{"user-1", "Demo User", "demo@example.com"},
		{"user-2", "Jane Customer", "jane@example.com"},
	}
	seedConversations = []seedConversation{
		{"conv-1", "user-1", "Order tracking help"},
		{"conv-2", "user-1", "Return policy clarification"},
		{"conv-3", "user-2", "Payment issue"},
	}
	seedMessages = []seedMessage{
		{"msg-1", "conv-1", domain.RoleUser, "Where is my order ORD-2024-001?", "", "", 12},
		{"msg-2", "conv-1", domain.RoleAssistant, "Your order has been shipped and is expected to arrive in 2 days.",
			string(domain.AgentOrder), "Fetched order status using order number", 25},
		{"msg-3", "conv-2", domain.RoleUser, "Can I return my headphones?", "", "", 8},
		{"msg-4", "conv-2", domain.RoleAssistant, "Yes, returns are accepted within 30 days if unused.",
			string(domain.AgentSupport), "Matched return policy FAQ", 18},
		{"msg-5", "conv-3", domain.RoleUser, "My payment failed but money was deducted.", "", "", 11},
	}
	seedOrders = []seedOrder{
		{
			id: "ord-1", userID: "user-1", number: "ORD-2024-001", status: "shipped", total: "299.00",
			items:      []domain.OrderItem{{Name: "Wireless Headphones", Quantity: 1, Price: 299.0}},
			tracking:   strPtr("TRK-998877"),
			deliveryIn: 2 * day,
		},
		{
			id: "ord-2", userID: "user-2", number: "ORD-2024-002", status: "processing", total: "1499.00",
			items: []domain.OrderItem{
				{Name: "Mechanical Keyboard", Quantity: 1, Price: 999.0},
				{Name: "Gaming Mouse", Quantity: 1, Price: 500.0},
			},
			deliveryIn: 5 * day,
		},
	}
	seedPayments = []seedPayment{
		{"pay-1", "user-1", "ord-1", "299.00", "completed", "credit_card", strPtr("https://example.com/invoices/inv-001.pdf")},
		{"pay-2", "user-2", "ord-2", "1499.00", "pending", "upi", nil},
	}
	seedFAQs = []domain.FAQ{
		{ID: "faq-ship-1", Category: "shipping", Question: "How do I track my order?",
			Answer: "You can track your order from the My Orders section using the tracking number sent to your registered email."},
		{ID: "faq-ship-2", Category: "shipping", Question: "How long does delivery usually take?",
			Answer: "Standard delivery usually takes 3 to 7 business days depending on your location."},
		{ID: "faq-ship-3", Category: "shipping", Question: "Do you ship internationally?",
			Answer: "Yes, we ship to selected international locations. Delivery timelines and charges vary by country."},
		{ID: "faq-ret-1", Category: "returns", Question: "What is your return policy?",
			Answer: "Items can be returned within 30 days of delivery if they are unused and in original packaging."},
		{ID: "faq-ret-2", Category: "returns", Question: "How do I initiate a return?",
			Answer: "You can request a return from the My Orders page by selecting the order and clicking on Return Item."},
		{ID: "faq-ret-3", Category: "returns", Question: "When will I receive my refund?",
			Answer: "Refunds are processed within 5 to 7 business days after the returned item is received and inspected."},
		{ID: "faq-acc-1", Category: "account", Question: "How can I reset my password?",
			Answer: "Go to the login page and click on Forgot Password. A reset link will be sent to your registered email."},
		{ID: "faq-acc-2", Category: "account", Question: "How do I update my account information?",
			Answer: "You can update your personal details from the Account Settings section after logging in."},
		{ID: "faq-acc-3", Category: "account", Question: "Can I change my registered email address?",
			Answer: "Yes, you can change your email address from Account Settings. Verification may be required."},
		{ID: "faq-pay-1", Category: "payment", Question: "What payment methods are supported?",
			Answer: "We support credit cards, debit cards, UPI, and net banking."},
		{ID: "faq-pay-2", Category: "payment", Question: "My payment failed but money was deducted. What should I do?",
			Answer: "In most cases, deducted amounts are automatically refunded within 3 to 5 business days."},
		{ID: "faq-pay-3", Category: "payment", Question: "How can I download my invoice?",
			Answer: "Invoices can be downloaded from the My Orders page once the order payment is completed."},
	}
)

// Seed loads the demo dataset. It is a no-op (returning false) once any user
// exists.
func (s *SQLiteStore) Seed(ctx context.Context) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storeErr("SQLiteStore.Seed", err)
	}
	defer tx.Rollback()

	var users int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&users); err != nil {
		return false, storeErr("SQLiteStore.Seed", err)
	}
	if users > 0 {
		return false, nil
	}

	now := s.now()
	ts := formatTime(now)

	for _, u := range seedUsers {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)",
			u.id, u.name, u.email, ts,
		); err != nil {
			return false, storeErr("SQLiteStore.Seed", fmt.Errorf("user %s: %w", u.id, err))
		}
	}
	for _, c := range seedConversations {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			c.id, c.userID, c.title, ts, ts,
		); err != nil {
			return false, storeErr("SQLiteStore.Seed", fmt.Errorf("conversation %s: %w", c.id, err))
		}
	}
	for i, m := range seedMessages {
		// Space the turns out so they keep their order when read back.
		at := formatTime(now.Add(time.Duration(i) * time.Millisecond))
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages ("+messageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			m.id, m.conversationID, m.role, m.content, m.agentType, m.reasoning, m.tokens, at,
		); err != nil {
			return false, storeErr("SQLiteStore.Seed", fmt.Errorf("message %s: %w", m.id, err))
		}
	}
	for _, o := range seedOrders {
		items, err := json.Marshal(o.items)
		if err != nil {
			return false, fmt.Errorf("marshal order items: %w", err)
		}
		eta := now.Add(o.deliveryIn)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO orders ("+orderColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			o.id, o.userID, o.number, o.status, o.total, string(items),
			toNullString(o.tracking), toNullTime(&eta), ts,
		); err != nil {
			return false, storeErr("SQLiteStore.Seed", fmt.Errorf("order %s: %w", o.number, err))
		}
	}
	for _, p := range seedPayments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO payments (id, user_id, order_id, amount, status, method, invoice_url, created_at, refunded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
			p.id, p.userID, p.orderID, p.amount, p.status, p.method, toNullString(p.invoiceURL), ts,
		); err != nil {
			return false, storeErr("SQLiteStore.Seed", fmt.Errorf("payment %s: %w", p.id, err))
		}
	}
	for _, f := range seedFAQs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO faqs (id, question, answer, category) VALUES (?, ?, ?, ?)",
			f.ID, f.Question, f.Answer, f.Category,
		); err != nil {
			return false, storeErr("SQLiteStore.Seed", fmt.Errorf("faq %s: %w", f.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, storeErr("SQLiteStore.Seed", err)
	}
	return true, nil
}
