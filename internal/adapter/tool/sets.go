package tool

import (
	"log/slog"

	"agentdesk/internal/domain"
)

// Sets are the disjoint per-agent tool registries.
type Sets struct {
	Order   *Registry
	Billing *Registry
	Support *Registry
}

// NewSets builds the order, billing and support registries over store.
func NewSets(store domain.CommerceStore, logger *slog.Logger) (*Sets, error) {
	order, err := newSet(logger,
		NewFetchOrderDetailsTool(store, logger),
		NewCheckDeliveryStatusTool(store, logger),
		NewGetUserOrdersTool(store, logger),
	)
	if err != nil {
		return nil, err
	}
	billing, err := newSet(logger,
		NewGetInvoiceDetailsTool(store, logger),
		NewCheckRefundStatusTool(store, logger),
	)
	if err != nil {
		return nil, err
	}
	support, err := newSet(logger, NewSearchFAQsTool(store, logger))
	if err != nil {
		return nil, err
	}
	return &Sets{Order: order, Billing: billing, Support: support}, nil
}

func newSet(logger *slog.Logger, tools ...domain.Tool) (*Registry, error) {
	reg := NewRegistry(logger)
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
