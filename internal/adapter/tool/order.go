package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"agentdesk/internal/domain"
	"agentdesk/internal/infra/tracer"
)

// DefaultUserID is the account getUserOrders falls back to when the model
// does not name one.
const DefaultUserID = "user-1"

const orderNumberSchema = `{
	"type": "object",
	"properties": {
		"orderNumber": {"type": "string", "description": "Order number, e.g. ORD-2024-001"}
	},
	"required": ["orderNumber"]
}`

type orderParams struct {
	OrderNumber string `json:"orderNumber"`
}

// findOrder resolves an order number, turning a missing record into a Miss.
func findOrder(ctx context.Context, store domain.CommerceStore, span trace.Span, orderNumber string) (*domain.Order, error) {
	if err := RequireField("orderNumber", orderNumber); err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.StringAttr("order.number", orderNumber))

	order, err := store.OrderByNumber(ctx, orderNumber)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, Miss("Order not found")
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// FetchOrderDetailsTool returns the full record of one order.
type FetchOrderDetailsTool struct {
	store  domain.CommerceStore
	logger *slog.Logger
}

// NewFetchOrderDetailsTool creates the fetchOrderDetails tool.
func NewFetchOrderDetailsTool(store domain.CommerceStore, logger *slog.Logger) *FetchOrderDetailsTool {
	return &FetchOrderDetailsTool{store: store, logger: logger}
}

func (t *FetchOrderDetailsTool) Name() string { return "fetchOrderDetails" }
func (t *FetchOrderDetailsTool) Description() string {
	return "Get details of a specific order by order number"
}

func (t *FetchOrderDetailsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(orderNumberSchema),
	}
}

func (t *FetchOrderDetailsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.fetch_order_details", t.logger, params,
		func(ctx context.Context, span trace.Span, p orderParams) (any, error) {
			return findOrder(ctx, t.store, span, p.OrderNumber)
		},
	)
}

// CheckDeliveryStatusTool reports shipping status and tracking for an order.
type CheckDeliveryStatusTool struct {
	store  domain.CommerceStore
	logger *slog.Logger
}

// NewCheckDeliveryStatusTool creates the checkDeliveryStatus tool.
func NewCheckDeliveryStatusTool(store domain.CommerceStore, logger *slog.Logger) *CheckDeliveryStatusTool {
	return &CheckDeliveryStatusTool{store: store, logger: logger}
}

func (t *CheckDeliveryStatusTool) Name() string { return "checkDeliveryStatus" }
func (t *CheckDeliveryStatusTool) Description() string {
	return "Check delivery status and tracking for an order"
}

func (t *CheckDeliveryStatusTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(orderNumberSchema),
	}
}

type deliveryStatus struct {
	Status            string     `json:"status"`
	TrackingNumber    *string    `json:"trackingNumber"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery"`
}

func (t *CheckDeliveryStatusTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.check_delivery_status", t.logger, params,
		func(ctx context.Context, span trace.Span, p orderParams) (any, error) {
			order, err := findOrder(ctx, t.store, span, p.OrderNumber)
			if err != nil {
				return nil, err
			}
			return deliveryStatus{
				Status:            order.Status,
				TrackingNumber:    order.TrackingNumber,
				EstimatedDelivery: order.EstimatedDelivery,
			}, nil
		},
	)
}

// GetUserOrdersTool lists every order of a user.
type GetUserOrdersTool struct {
	store  domain.CommerceStore
	logger *slog.Logger
}

// NewGetUserOrdersTool creates the getUserOrders tool.
func NewGetUserOrdersTool(store domain.CommerceStore, logger *slog.Logger) *GetUserOrdersTool {
	return &GetUserOrdersTool{store: store, logger: logger}
}

func (t *GetUserOrdersTool) Name() string        { return "getUserOrders" }
func (t *GetUserOrdersTool) Description() string { return "Get all orders for the current user" }

func (t *GetUserOrdersTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"userId": {"type": "string", "description": "User id, defaults to the current user", "default": "user-1"}
			}
		}`),
	}
}

type userOrdersParams struct {
	UserID string `json:"userId"`
}

type userOrders struct {
	Total  int            `json:"total"`
	Orders []domain.Order `json:"orders"`
}

func (t *GetUserOrdersTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_user_orders", t.logger, params,
		func(ctx context.Context, span trace.Span, p userOrdersParams) (any, error) {
			if p.UserID == "" {
				p.UserID = DefaultUserID
			}
			span.SetAttributes(tracer.StringAttr("user.id", p.UserID))

			orders, err := t.store.OrdersByUser(ctx, p.UserID)
			if err != nil {
				return nil, err
			}
			if orders == nil {
				orders = []domain.Order{}
			}
			return userOrders{Total: len(orders), Orders: orders}, nil
		},
	)
}
