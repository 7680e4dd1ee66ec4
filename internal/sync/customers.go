package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/salla-bridge/salla-bridge/internal/erp"
	"github.com/salla-bridge/salla-bridge/internal/salla"
)

// CustomerSource is the slice of the Salla client the customer manager needs.
type CustomerSource interface {
	ListCustomers(ctx context.Context, opts salla.ListOptions) ([]salla.Customer, salla.Pagination, error)
}

// CustomerSyncManager imports Salla customers into local customer records.
// Customers flow one way only, platform to local; an existing local customer
// with the same name is linked rather than duplicated.
type CustomerSyncManager struct {
	source    CustomerSource
	customers erp.CustomerRepository
	xrefs     XrefStore
	logger    *slog.Logger

	perPage     int
	maxFailures int
}

// NewCustomerSyncManager constructs the manager.
func NewCustomerSyncManager(source CustomerSource, customers erp.CustomerRepository, xrefs XrefStore, logger *slog.Logger) *CustomerSyncManager {
	return &CustomerSyncManager{
		source:      source,
		customers:   customers,
		xrefs:       xrefs,
		logger:      logger,
		perPage:     50,
		maxFailures: DefaultMaxFailures,
	}
}

// ImportAll pulls the store's customers page by page, creating missing local
// records and linking those already present by name.
func (m *CustomerSyncManager) ImportAll(ctx context.Context) Result {
	r := newRun(m.maxFailures)
	page := 1
	for {
		if err := r.checkpoint(ctx); err != nil {
			return r.finish(err, "customers imported")
		}
		r.enter(StateFetching)
		customers, pagination, err := m.source.ListCustomers(ctx, salla.ListOptions{Page: page, PerPage: m.perPage})
		if err != nil {
			return r.failure(fmt.Errorf("fetch customers page %d: %w", page, err))
		}
		for _, customer := range customers {
			if err := m.importOne(ctx, r, customer); err != nil {
				return r.finish(err, "customers imported")
			}
		}
		if !pagination.HasMore() || len(customers) == 0 {
			return r.finish(nil, "customers imported")
		}
		page = pagination.CurrentPage + 1
	}
}

func (m *CustomerSyncManager) importOne(ctx context.Context, r *run, customer salla.Customer) error {
	r.enter(StateMapping)
	platformID := strconv.FormatInt(customer.ID, 10)

	draft, err := MapCustomer(customer)
	if err != nil {
		m.logger.Warn("skipping customer", slog.String("platform_id", platformID), slog.Any("error", err))
		return r.recordFailure(err)
	}

	r.enter(StateUpserting)
	hash := ContentHash(draft)
	ref, err := m.xrefs.Resolve(ctx, EntityCustomer, platformID)
	switch {
	case err == nil:
		if ref.ContentHash == hash {
			return nil
		}
		if err := m.customers.Update(ctx, ref.LocalID, customerFromDraft(draft)); err != nil {
			return r.recordFailure(fmt.Errorf("update customer %q: %w", draft.Name, err))
		}
		if _, err := m.xrefs.Upsert(ctx, CrossReference{
			EntityType: EntityCustomer, PlatformID: platformID, LocalID: ref.LocalID, ContentHash: hash,
		}); err != nil {
			return r.recordFailure(fmt.Errorf("upsert xref %s: %w", platformID, err))
		}
		r.counts.Updated++
		return nil

	case errors.Is(err, ErrXrefNotFound):
		existing, getErr := m.customers.GetByName(ctx, draft.Name)
		switch {
		case getErr == nil:
			if _, err := m.xrefs.Upsert(ctx, CrossReference{
				EntityType: EntityCustomer, PlatformID: platformID, LocalID: existing.ID, ContentHash: hash,
			}); err != nil {
				return r.recordFailure(fmt.Errorf("link customer %q: %w", draft.Name, err))
			}
			r.counts.Linked++
			return nil
		case errors.Is(getErr, erp.ErrNotFound):
			created, createErr := m.customers.Create(ctx, customerFromDraft(draft))
			if createErr != nil {
				return r.recordFailure(fmt.Errorf("create customer %q: %w", draft.Name, createErr))
			}
			if _, err := m.xrefs.Upsert(ctx, CrossReference{
				EntityType: EntityCustomer, PlatformID: platformID, LocalID: created.ID, ContentHash: hash,
			}); err != nil {
				return r.recordFailure(fmt.Errorf("upsert xref %s: %w", platformID, err))
			}
			r.counts.Created++
			return nil
		default:
			return r.recordFailure(fmt.Errorf("lookup customer %q: %w", draft.Name, getErr))
		}

	default:
		return r.recordFailure(fmt.Errorf("resolve xref %s: %w", platformID, err))
	}
}

func customerFromDraft(draft CustomerDraft) erp.Customer {
	return erp.Customer{Name: draft.Name, Email: draft.Email, Phone: draft.Phone}
}
