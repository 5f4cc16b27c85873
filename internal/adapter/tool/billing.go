package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"agentdesk/internal/domain"
)

// GetInvoiceDetailsTool returns the payment record of an order with its items.
type GetInvoiceDetailsTool struct {
	store  domain.CommerceStore
	logger *slog.Logger
}

// NewGetInvoiceDetailsTool creates the getInvoiceDetails tool.
func NewGetInvoiceDetailsTool(store domain.CommerceStore, logger *slog.Logger) *GetInvoiceDetailsTool {
	return &GetInvoiceDetailsTool{store: store, logger: logger}
}

func (t *GetInvoiceDetailsTool) Name() string { return "getInvoiceDetails" }
func (t *GetInvoiceDetailsTool) Description() string {
	return "Get invoice and payment details for an order"
}

func (t *GetInvoiceDetailsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(orderNumberSchema),
	}
}

type invoiceDetails struct {
	domain.Payment
	Items []domain.OrderItem `json:"items"`
}

func (t *GetInvoiceDetailsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_invoice_details", t.logger, params,
		func(ctx context.Context, span trace.Span, p orderParams) (any, error) {
			order, err := findOrder(ctx, t.store, span, p.OrderNumber)
			if err != nil {
				return nil, err
			}
			payment, err := findPayment(ctx, t.store, order.ID, "Payment not found")
			if err != nil {
				return nil, err
			}
			return invoiceDetails{Payment: *payment, Items: order.Items}, nil
		},
	)
}

// CheckRefundStatusTool reports whether an order was refunded or can be.
type CheckRefundStatusTool struct {
	store  domain.CommerceStore
	logger *slog.Logger
}

// NewCheckRefundStatusTool creates the checkRefundStatus tool.
func NewCheckRefundStatusTool(store domain.CommerceStore, logger *slog.Logger) *CheckRefundStatusTool {
	return &CheckRefundStatusTool{store: store, logger: logger}
}

func (t *CheckRefundStatusTool) Name() string { return "checkRefundStatus" }
func (t *CheckRefundStatusTool) Description() string {
	return "Check if an order is refunded or eligible for refund"
}

func (t *CheckRefundStatusTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(orderNumberSchema),
	}
}

type refundStatus struct {
	IsRefunded bool   `json:"isRefunded"`
	CanRefund  bool   `json:"canRefund"`
	Status     string `json:"status"`
}

func (t *CheckRefundStatusTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.check_refund_status", t.logger, params,
		func(ctx context.Context, span trace.Span, p orderParams) (any, error) {
			order, err := findOrder(ctx, t.store, span, p.OrderNumber)
			if err != nil {
				return nil, err
			}
			payment, err := findPayment(ctx, t.store, order.ID, "Payment info not found")
			if err != nil {
				return nil, err
			}
			return refundStatus{
				IsRefunded: payment.Status == "refunded",
				CanRefund:  payment.Status == "completed" && order.Status != "pending",
				Status:     payment.Status,
			}, nil
		},
	)
}

func findPayment(ctx context.Context, store domain.CommerceStore, orderID string, missing Miss) (*domain.Payment, error) {
	payment, err := store.PaymentByOrder(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, missing
	}
	if err != nil {
		return nil, err
	}
	return payment, nil
}
