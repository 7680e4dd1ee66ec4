package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/salla-bridge/salla-bridge/internal/erp"
	"github.com/salla-bridge/salla-bridge/internal/salla"
)

// OrderSource is the slice of the Salla client the order manager needs.
type OrderSource interface {
	ListOrders(ctx context.Context, opts salla.ListOptions) ([]salla.Order, salla.Pagination, error)
	ListOrderItems(ctx context.Context, orderID string) ([]salla.OrderItem, error)
	ListOrderStatuses(ctx context.Context) ([]salla.OrderStatus, error)
}

// OrderSyncManager imports Salla orders and order statuses. Orders flow one
// way only, platform to local; an already-imported order is never recreated,
// only its status follows the remote side.
type OrderSyncManager struct {
	source   OrderSource
	orders   erp.SalesOrderRepository
	statuses erp.OrderStatusRepository
	xrefs    XrefStore
	logger   *slog.Logger

	perPage     int
	maxFailures int
}

// NewOrderSyncManager constructs the manager.
func NewOrderSyncManager(source OrderSource, orders erp.SalesOrderRepository, statuses erp.OrderStatusRepository, xrefs XrefStore, logger *slog.Logger) *OrderSyncManager {
	return &OrderSyncManager{
		source:      source,
		orders:      orders,
		statuses:    statuses,
		xrefs:       xrefs,
		logger:      logger,
		perPage:     50,
		maxFailures: DefaultMaxFailures,
	}
}

// ImportStatuses pulls the merchant's order status definitions and links or
// creates the local ones, keyed by status code.
func (m *OrderSyncManager) ImportStatuses(ctx context.Context) Result {
	r := newRun(m.maxFailures)
	r.enter(StateFetching)

	remote, err := m.source.ListOrderStatuses(ctx)
	if err != nil {
		return r.failure(fmt.Errorf("fetch order statuses: %w", err))
	}

	for _, status := range remote {
		r.enter(StateMapping)
		platformID := strconv.FormatInt(status.ID, 10)
		draft, err := MapOrderStatus(status)
		if err != nil {
			m.logger.Warn("skipping order status", slog.String("platform_id", platformID), slog.Any("error", err))
			if rerr := r.recordFailure(err); rerr != nil {
				return r.failure(rerr)
			}
			continue
		}

		r.enter(StateUpserting)
		hash := ContentHash(draft)
		ref, err := m.xrefs.Resolve(ctx, EntityOrderStatus, platformID)
		switch {
		case err == nil:
			if ref.ContentHash == hash {
				continue
			}
			if err := m.statuses.Update(ctx, ref.LocalID, erp.OrderStatus{Code: draft.Code, Name: draft.Name}); err != nil {
				if rerr := r.recordFailure(fmt.Errorf("update status %q: %w", draft.Code, err)); rerr != nil {
					return r.failure(rerr)
				}
				continue
			}
			if _, err := m.xrefs.Upsert(ctx, CrossReference{
				EntityType: EntityOrderStatus, PlatformID: platformID, LocalID: ref.LocalID, ContentHash: hash,
			}); err != nil {
				if rerr := r.recordFailure(fmt.Errorf("upsert xref %s: %w", platformID, err)); rerr != nil {
					return r.failure(rerr)
				}
				continue
			}
			r.counts.Updated++

		case errors.Is(err, ErrXrefNotFound):
			existing, getErr := m.statuses.GetByCode(ctx, draft.Code)
			switch {
			case getErr == nil:
				if _, err := m.xrefs.Upsert(ctx, CrossReference{
					EntityType: EntityOrderStatus, PlatformID: platformID, LocalID: existing.ID, ContentHash: hash,
				}); err != nil {
					if rerr := r.recordFailure(fmt.Errorf("link status %q: %w", draft.Code, err)); rerr != nil {
						return r.failure(rerr)
					}
					continue
				}
				r.counts.Linked++
			case errors.Is(getErr, erp.ErrNotFound):
				created, createErr := m.statuses.Create(ctx, erp.OrderStatus{Code: draft.Code, Name: draft.Name})
				if createErr != nil {
					if rerr := r.recordFailure(fmt.Errorf("create status %q: %w", draft.Code, createErr)); rerr != nil {
						return r.failure(rerr)
					}
					continue
				}
				if _, err := m.xrefs.Upsert(ctx, CrossReference{
					EntityType: EntityOrderStatus, PlatformID: platformID, LocalID: created.ID, ContentHash: hash,
				}); err != nil {
					if rerr := r.recordFailure(fmt.Errorf("upsert xref %s: %w", platformID, err)); rerr != nil {
						return r.failure(rerr)
					}
					continue
				}
				r.counts.Created++
			default:
				if rerr := r.recordFailure(fmt.Errorf("lookup status %q: %w", draft.Code, getErr)); rerr != nil {
					return r.failure(rerr)
				}
			}

		default:
			if rerr := r.recordFailure(fmt.Errorf("resolve xref %s: %w", platformID, err)); rerr != nil {
				return r.failure(rerr)
			}
		}
	}
	return r.finish(nil, "order statuses imported")
}

// ImportOrders pulls remote orders page by page. New orders are created;
// orders seen before have only their status brought up to date.
func (m *OrderSyncManager) ImportOrders(ctx context.Context) Result {
	r := newRun(m.maxFailures)
	page := 1
	for {
		if err := r.checkpoint(ctx); err != nil {
			return r.finish(err, "orders imported")
		}
		r.enter(StateFetching)
		orders, pagination, err := m.source.ListOrders(ctx, salla.ListOptions{Page: page, PerPage: m.perPage})
		if err != nil {
			return r.failure(fmt.Errorf("fetch orders page %d: %w", page, err))
		}
		for _, order := range orders {
			if err := m.importOne(ctx, r, order); err != nil {
				return r.finish(err, "orders imported")
			}
		}
		if !pagination.HasMore() || len(orders) == 0 {
			return r.finish(nil, "orders imported")
		}
		page = pagination.CurrentPage + 1
	}
}

func (m *OrderSyncManager) importOne(ctx context.Context, r *run, order salla.Order) error {
	r.enter(StateMapping)
	platformID := strconv.FormatInt(order.ID, 10)

	draft, err := MapOrder(order)
	if err != nil {
		m.logger.Warn("skipping order", slog.String("platform_id", platformID), slog.Any("error", err))
		return r.recordFailure(err)
	}

	r.enter(StateUpserting)
	hash := ContentHash(draft)
	ref, err := m.xrefs.Resolve(ctx, EntityOrder, platformID)
	switch {
	case err == nil:
		if ref.ContentHash == hash {
			return nil
		}
		if err := m.orders.UpdateStatus(ctx, ref.LocalID, draft.Status); err != nil {
			return r.recordFailure(fmt.Errorf("update order %s: %w", draft.OrderNumber, err))
		}
		if _, err := m.xrefs.Upsert(ctx, CrossReference{
			EntityType: EntityOrder, PlatformID: platformID, LocalID: ref.LocalID, ContentHash: hash,
		}); err != nil {
			return r.recordFailure(fmt.Errorf("upsert xref %s: %w", platformID, err))
		}
		r.counts.Updated++
		return nil

	case errors.Is(err, ErrXrefNotFound):
		items, itemsErr := m.source.ListOrderItems(ctx, platformID)
		if itemsErr != nil {
			return r.recordFailure(fmt.Errorf("fetch order items %s: %w", platformID, itemsErr))
		}
		created, createErr := m.orders.Create(ctx, erp.SalesOrder{
			OrderNumber:  draft.OrderNumber,
			CustomerName: draft.CustomerName,
			Status:       draft.Status,
			Total:        draft.Total,
			Currency:     draft.Currency,
			PlacedAt:     draft.PlacedAt,
		})
		if createErr != nil {
			return r.recordFailure(fmt.Errorf("create order %s: %w", draft.OrderNumber, createErr))
		}
		if lines := orderLines(items); len(lines) > 0 {
			if err := m.orders.AddLines(ctx, created.ID, lines); err != nil {
				// The order header stands; the missing lines count as one
				// record failure and the run continues.
				if rerr := r.recordFailure(fmt.Errorf("store order lines %s: %w", draft.OrderNumber, err)); rerr != nil {
					return rerr
				}
			}
		}
		if _, err := m.xrefs.Upsert(ctx, CrossReference{
			EntityType: EntityOrder, PlatformID: platformID, LocalID: created.ID, ContentHash: hash,
		}); err != nil {
			return r.recordFailure(fmt.Errorf("upsert xref %s: %w", platformID, err))
		}
		r.counts.Created++
		return nil

	default:
		return r.recordFailure(fmt.Errorf("resolve xref %s: %w", platformID, err))
	}
}

// orderLines maps platform line items onto sales order lines. Lines without
// a SKU have nothing local to bill against and are dropped.
func orderLines(items []salla.OrderItem) []erp.SalesOrderLine {
	var lines []erp.SalesOrderLine
	for _, item := range items {
		sku := strings.TrimSpace(item.SKU)
		if sku == "" {
			continue
		}
		lines = append(lines, erp.SalesOrderLine{
			SKU:      sku,
			Name:     normalizeText(item.Name),
			Quantity: item.Quantity,
			Total:    item.Amounts.Total.Amount,
		})
	}
	return lines
}
