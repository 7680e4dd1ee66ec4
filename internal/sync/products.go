package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/salla-bridge/salla-bridge/internal/erp"
	"github.com/salla-bridge/salla-bridge/internal/salla"
)

// ProductSource is the slice of the Salla client the product manager needs.
type ProductSource interface {
	ListProducts(ctx context.Context, opts salla.ListOptions) ([]salla.Product, salla.Pagination, error)
	GetProduct(ctx context.Context, id, lang string) (salla.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (salla.Product, error)
	CreateProduct(ctx context.Context, input salla.ProductInput) (salla.Product, error)
	UpdateProduct(ctx context.Context, id string, input salla.ProductInput) (salla.Product, error)
}

// lockTTL bounds how long one record upsert may hold its platform-id lock.
const lockTTL = 30 * time.Second

// ProductSyncManager reconciles Salla products with local items.
type ProductSyncManager struct {
	source ProductSource
	items  erp.ItemRepository
	xrefs  XrefStore
	locks  Locker
	logger *slog.Logger

	perPage         int
	maxFailures     int
	strictConflicts bool
	lang            string
	altLang         string
}

// ProductSyncOption customises the manager.
type ProductSyncOption func(*ProductSyncManager)

// WithPerPage sets the remote page size.
func WithPerPage(n int) ProductSyncOption {
	return func(m *ProductSyncManager) { m.perPage = n }
}

// WithMaxFailures sets the hard-error threshold per run.
func WithMaxFailures(n int) ProductSyncOption {
	return func(m *ProductSyncManager) { m.maxFailures = n }
}

// WithStrictConflicts makes SKU collisions within one run surface as
// ConflictError instead of resolving last-write-wins.
func WithStrictConflicts() ProductSyncOption {
	return func(m *ProductSyncManager) { m.strictConflicts = true }
}

// WithLanguages sets the store language requested on fetches and the
// alternate language joined into each imported product. An empty alt (or
// alt equal to lang) disables the translation fetch.
func WithLanguages(lang, alt string) ProductSyncOption {
	return func(m *ProductSyncManager) {
		m.lang = lang
		m.altLang = alt
	}
}

// NewProductSyncManager constructs the manager.
func NewProductSyncManager(source ProductSource, items erp.ItemRepository, xrefs XrefStore, locks Locker, logger *slog.Logger, opts ...ProductSyncOption) *ProductSyncManager {
	m := &ProductSyncManager{
		source:      source,
		items:       items,
		xrefs:       xrefs,
		locks:       locks,
		logger:      logger,
		perPage:     50,
		maxFailures: DefaultMaxFailures,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ImportOptions filters a product import.
type ImportOptions struct {
	// SKUFilter limits the import to one SKU when set.
	SKUFilter string
}

// ImportAll pulls the whole remote catalog page by page, creating missing
// items and linking existing ones by SKU. On bilingual stores each page is
// fetched twice, once per language, and joined by product id. Pages are
// processed in fetch order; a failing record does not abort the page.
func (m *ProductSyncManager) ImportAll(ctx context.Context, opts ImportOptions) Result {
	r := newRun(m.maxFailures)
	seen := map[string]string{} // SKU -> platform id, for strict conflict detection

	err := m.eachProductPage(ctx, r, func(page int, products []salla.Product) error {
		translations, err := m.pageTranslations(ctx, page, products)
		if err != nil {
			return err
		}
		for _, product := range products {
			if opts.SKUFilter != "" && product.SKU != opts.SKUFilter {
				continue
			}
			if err := m.importOne(ctx, r, product, translations[product.ID], seen); err != nil {
				return err
			}
		}
		return nil
	})
	return r.finish(err, "product import completed")
}

// pageTranslations refetches one catalog page in the alternate language and
// indexes it by product id. Returns nil on monolingual configurations.
func (m *ProductSyncManager) pageTranslations(ctx context.Context, page int, products []salla.Product) (map[int64]salla.Product, error) {
	if m.altLang == "" || m.altLang == m.lang || len(products) == 0 {
		return nil, nil
	}
	alt, _, err := m.source.ListProducts(ctx, salla.ListOptions{Page: page, PerPage: m.perPage, Lang: m.altLang})
	if err != nil {
		return nil, fmt.Errorf("fetch products page %d lang %s: %w", page, m.altLang, err)
	}
	byID := make(map[int64]salla.Product, len(alt))
	for _, p := range alt {
		byID[p.ID] = p
	}
	return byID, nil
}

// ImportSingle imports one product by its Salla id.
func (m *ProductSyncManager) ImportSingle(ctx context.Context, sallaID string) Result {
	r := newRun(m.maxFailures)
	r.enter(StateFetching)
	product, err := m.source.GetProduct(ctx, sallaID, m.lang)
	if err != nil {
		return r.failure(fmt.Errorf("fetch product %s: %w", sallaID, err))
	}
	var alt salla.Product
	if m.altLang != "" && m.altLang != m.lang {
		alt, err = m.source.GetProduct(ctx, sallaID, m.altLang)
		if err != nil && !errors.Is(err, salla.ErrNotFound) {
			return r.failure(fmt.Errorf("fetch product %s lang %s: %w", sallaID, m.altLang, err))
		}
	}
	if err := m.importOne(ctx, r, product, alt, map[string]string{}); err != nil {
		return r.failure(err)
	}
	if r.counts.Failed > 0 {
		return r.failure(errors.New(r.errs[0]))
	}
	return r.success("product " + sallaID + " imported")
}

// importOne maps and upserts a single platform product. alt is the same
// product fetched in the alternate language; a zero alt means monolingual.
func (m *ProductSyncManager) importOne(ctx context.Context, r *run, product, alt salla.Product, seen map[string]string) error {
	r.enter(StateMapping)
	platformID := strconv.FormatInt(product.ID, 10)

	draft, err := MapProduct(product)
	if err != nil {
		m.logger.Warn("skipping product", slog.String("platform_id", platformID), slog.Any("error", err))
		return r.recordFailure(err)
	}
	draft.applyTranslation(alt)

	if firstID, dup := seen[draft.SKU]; dup && firstID != platformID {
		if m.strictConflicts {
			return r.recordFailure(&ConflictError{
				EntityType: EntityProduct,
				Key:        draft.SKU,
				FirstID:    firstID,
				SecondID:   platformID,
			})
		}
		// Last-write-wins: the later record overwrites, the earlier
		// writer's cross-reference is updated in place below.
		m.logger.Warn("duplicate SKU in fetch, later record wins",
			slog.String("sku", draft.SKU),
			slog.String("first", firstID),
			slog.String("second", platformID))
	}
	seen[draft.SKU] = platformID

	r.enter(StateUpserting)
	release, ok, err := m.locks.Acquire(ctx, LockKey(EntityProduct, platformID), lockTTL)
	if err != nil {
		return r.recordFailure(fmt.Errorf("lock %s: %w", platformID, err))
	}
	if !ok {
		return r.recordFailure(fmt.Errorf("platform id %s locked by concurrent job", platformID))
	}
	defer release()

	hash := ContentHash(draft)
	ref, err := m.xrefs.Resolve(ctx, EntityProduct, platformID)
	switch {
	case err == nil:
		if ref.ContentHash == hash {
			return nil // unchanged since last sync
		}
		if err := m.items.Update(ctx, ref.LocalID, itemFromDraft(draft)); err != nil {
			return r.recordFailure(fmt.Errorf("update item %s: %w", draft.SKU, err))
		}
		if _, err := m.xrefs.Upsert(ctx, CrossReference{
			EntityType: EntityProduct, PlatformID: platformID, LocalID: ref.LocalID, ContentHash: hash,
		}); err != nil {
			return r.recordFailure(fmt.Errorf("upsert xref %s: %w", platformID, err))
		}
		r.counts.Updated++
		return nil

	case errors.Is(err, ErrXrefNotFound):
		// Link-before-create: an item with the same SKU must be linked,
		// never duplicated.
		existing, getErr := m.items.GetBySKU(ctx, draft.SKU)
		switch {
		case getErr == nil:
			if _, err := m.xrefs.Upsert(ctx, CrossReference{
				EntityType: EntityProduct, PlatformID: platformID, LocalID: existing.ID, ContentHash: hash,
			}); err != nil {
				return r.recordFailure(fmt.Errorf("link item %s: %w", draft.SKU, err))
			}
			r.counts.Linked++
			return nil
		case errors.Is(getErr, erp.ErrNotFound):
			created, createErr := m.items.Create(ctx, itemFromDraft(draft))
			if createErr != nil {
				return r.recordFailure(fmt.Errorf("create item %s: %w", draft.SKU, createErr))
			}
			if _, err := m.xrefs.Upsert(ctx, CrossReference{
				EntityType: EntityProduct, PlatformID: platformID, LocalID: created.ID, ContentHash: hash,
			}); err != nil {
				return r.recordFailure(fmt.Errorf("upsert xref %s: %w", platformID, err))
			}
			r.counts.Created++
			return nil
		default:
			return r.recordFailure(fmt.Errorf("lookup item %s: %w", draft.SKU, getErr))
		}

	default:
		return r.recordFailure(fmt.Errorf("resolve xref %s: %w", platformID, err))
	}
}

// LinkExisting walks the remote catalog and attaches platform ids to
// already-present local items without mutating them.
func (m *ProductSyncManager) LinkExisting(ctx context.Context) Result {
	r := newRun(m.maxFailures)

	err := m.eachProductPage(ctx, r, func(_ int, products []salla.Product) error {
		for _, product := range products {
			platformID := strconv.FormatInt(product.ID, 10)
			sku := product.SKU
			if sku == "" {
				continue
			}
			item, err := m.items.GetBySKU(ctx, sku)
			if errors.Is(err, erp.ErrNotFound) {
				continue
			}
			if err != nil {
				if rerr := r.recordFailure(fmt.Errorf("lookup item %s: %w", sku, err)); rerr != nil {
					return rerr
				}
				continue
			}
			if _, err := m.xrefs.Resolve(ctx, EntityProduct, platformID); err == nil {
				continue // already linked
			}
			draft, err := MapProduct(product)
			if err != nil {
				if rerr := r.recordFailure(err); rerr != nil {
					return rerr
				}
				continue
			}
			if _, err := m.xrefs.Upsert(ctx, CrossReference{
				EntityType: EntityProduct, PlatformID: platformID, LocalID: item.ID, ContentHash: ContentHash(draft),
			}); err != nil {
				if rerr := r.recordFailure(fmt.Errorf("link %s: %w", sku, err)); rerr != nil {
					return rerr
				}
				continue
			}
			r.counts.Linked++
		}
		return nil
	})
	return r.finish(err, "existing items linked")
}

// CreateLinks walks the local items and records a cross-reference for every
// SKU that exists remotely. SKUs absent from Salla are skipped.
func (m *ProductSyncManager) CreateLinks(ctx context.Context) Result {
	r := newRun(m.maxFailures)
	r.enter(StateFetching)

	skus, err := m.items.ListSKUs(ctx)
	if err != nil {
		return r.failure(fmt.Errorf("list local items: %w", err))
	}

	r.enter(StateUpserting)
	for _, sku := range skus {
		item, err := m.items.GetBySKU(ctx, sku)
		if err != nil {
			if rerr := r.recordFailure(fmt.Errorf("load item %s: %w", sku, err)); rerr != nil {
				return r.failure(rerr)
			}
			continue
		}
		if _, err := m.xrefs.ResolveLocal(ctx, EntityProduct, item.ID); err == nil {
			continue // already linked
		}
		remote, err := m.source.GetProductBySKU(ctx, sku)
		if errors.Is(err, salla.ErrNotFound) {
			m.logger.Info("no salla product for sku", slog.String("sku", sku))
			continue
		}
		if err != nil {
			if rerr := r.recordFailure(fmt.Errorf("remote lookup %s: %w", sku, err)); rerr != nil {
				return r.failure(rerr)
			}
			continue
		}
		draft, err := MapProduct(remote)
		if err != nil {
			if rerr := r.recordFailure(err); rerr != nil {
				return r.failure(rerr)
			}
			continue
		}
		if _, err := m.xrefs.Upsert(ctx, CrossReference{
			EntityType:  EntityProduct,
			PlatformID:  strconv.FormatInt(remote.ID, 10),
			LocalID:     item.ID,
			ContentHash: ContentHash(draft),
		}); err != nil {
			if rerr := r.recordFailure(fmt.Errorf("link %s: %w", sku, err)); rerr != nil {
				return r.failure(rerr)
			}
			continue
		}
		r.counts.Linked++
	}
	message := "product links created"
	if total, err := m.xrefs.Count(ctx, EntityProduct); err == nil {
		message = fmt.Sprintf("product links created (%d total)", total)
	}
	return r.finish(nil, message)
}

// ImportPrices overwrites local item prices from the remote catalog,
// last-write-wins in fetch order.
func (m *ProductSyncManager) ImportPrices(ctx context.Context) Result {
	r := newRun(m.maxFailures)

	err := m.eachProductPage(ctx, r, func(_ int, products []salla.Product) error {
		for _, product := range products {
			draft, err := MapPrice(product)
			if err != nil {
				if rerr := r.recordFailure(err); rerr != nil {
					return rerr
				}
				continue
			}
			err = m.items.UpdatePriceBySKU(ctx, draft.SKU, draft.Amount, draft.Currency)
			if errors.Is(err, erp.ErrNotFound) {
				continue // no local item for this SKU
			}
			if err != nil {
				if rerr := r.recordFailure(fmt.Errorf("update price %s: %w", draft.SKU, err)); rerr != nil {
					return rerr
				}
				continue
			}
			r.counts.UpdatedPrices++
		}
		return nil
	})
	return r.finish(err, "prices imported")
}

// Push sends one local item to Salla: update through the existing link,
// link by SKU when the remote product exists, otherwise create it.
func (m *ProductSyncManager) Push(ctx context.Context, sku string) Result {
	r := newRun(m.maxFailures)
	r.enter(StateFetching)

	item, err := m.items.GetBySKU(ctx, sku)
	if err != nil {
		return r.failure(fmt.Errorf("load item %s: %w", sku, err))
	}
	quantity := item.Quantity
	input := salla.ProductInput{
		Name:        item.Name,
		Description: item.Description,
		SKU:         item.SKU,
		Price:       item.Price,
		Quantity:    &quantity,
	}

	r.enter(StateUpserting)
	if ref, err := m.xrefs.ResolveLocal(ctx, EntityProduct, item.ID); err == nil {
		if _, err := m.source.UpdateProduct(ctx, ref.PlatformID, input); err != nil {
			return r.failure(fmt.Errorf("update salla product %s: %w", ref.PlatformID, err))
		}
		r.counts.Updated++
		return r.success("product " + sku + " updated in salla")
	}

	remote, err := m.source.GetProductBySKU(ctx, sku)
	switch {
	case err == nil:
		platformID := strconv.FormatInt(remote.ID, 10)
		if _, err := m.source.UpdateProduct(ctx, platformID, input); err != nil {
			return r.failure(fmt.Errorf("update salla product %s: %w", platformID, err))
		}
		if _, err := m.xrefs.Upsert(ctx, CrossReference{
			EntityType: EntityProduct, PlatformID: platformID, LocalID: item.ID, ContentHash: ContentHash(input),
		}); err != nil {
			return r.failure(fmt.Errorf("link item %s: %w", sku, err))
		}
		r.counts.Linked++
		return r.success("product " + sku + " linked and updated in salla")

	case errors.Is(err, salla.ErrNotFound):
		created, err := m.source.CreateProduct(ctx, input)
		if err != nil {
			return r.failure(fmt.Errorf("create salla product %s: %w", sku, err))
		}
		if _, err := m.xrefs.Upsert(ctx, CrossReference{
			EntityType:  EntityProduct,
			PlatformID:  strconv.FormatInt(created.ID, 10),
			LocalID:     item.ID,
			ContentHash: ContentHash(input),
		}); err != nil {
			return r.failure(fmt.Errorf("link item %s: %w", sku, err))
		}
		r.counts.Created++
		return r.success("product " + sku + " created in salla")

	default:
		return r.failure(fmt.Errorf("remote lookup %s: %w", sku, err))
	}
}

// eachProductPage drives the fetch loop. Cancellation is honoured between
// pages only, so in-flight page processing always completes.
func (m *ProductSyncManager) eachProductPage(ctx context.Context, r *run, process func(page int, products []salla.Product) error) error {
	page := 1
	for {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		r.enter(StateFetching)
		products, pagination, err := m.source.ListProducts(ctx, salla.ListOptions{Page: page, PerPage: m.perPage, Lang: m.lang})
		if err != nil {
			return fmt.Errorf("fetch products page %d: %w", page, err)
		}
		if err := process(page, products); err != nil {
			return err
		}
		if !pagination.HasMore() || len(products) == 0 {
			return nil
		}
		page = pagination.CurrentPage + 1
	}
}

func itemFromDraft(draft ItemDraft) erp.Item {
	return erp.Item{
		SKU:           draft.SKU,
		Name:          draft.Name,
		NameEN:        draft.NameEN,
		Description:   draft.Description,
		DescriptionEN: draft.DescriptionEN,
		Price:         draft.Price,
		Currency:      draft.Currency,
		Quantity:      draft.Quantity,
		IsActive:      draft.Active,
	}
}
