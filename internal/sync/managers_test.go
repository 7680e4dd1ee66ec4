package sync

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/salla-bridge/salla-bridge/internal/erp"
	"github.com/salla-bridge/salla-bridge/internal/salla"
)

// --- in-memory fakes ---

type memoryXrefs struct {
	refs map[string]CrossReference
}

func newMemoryXrefs() *memoryXrefs {
	return &memoryXrefs{refs: make(map[string]CrossReference)}
}

func xrefKey(et EntityType, platformID string) string {
	return string(et) + "/" + platformID
}

func (s *memoryXrefs) Resolve(_ context.Context, et EntityType, platformID string) (CrossReference, error) {
	if ref, ok := s.refs[xrefKey(et, platformID)]; ok {
		return ref, nil
	}
	return CrossReference{}, ErrXrefNotFound
}

func (s *memoryXrefs) ResolveLocal(_ context.Context, et EntityType, localID int64) (CrossReference, error) {
	for _, ref := range s.refs {
		if ref.EntityType == et && ref.LocalID == localID {
			return ref, nil
		}
	}
	return CrossReference{}, ErrXrefNotFound
}

func (s *memoryXrefs) Upsert(_ context.Context, ref CrossReference) (bool, error) {
	key := xrefKey(ref.EntityType, ref.PlatformID)
	if existing, ok := s.refs[key]; ok && existing.ContentHash == ref.ContentHash {
		return false, nil
	}
	ref.LastSyncedAt = time.Now()
	s.refs[key] = ref
	return true, nil
}

func (s *memoryXrefs) Count(_ context.Context, et EntityType) (int, error) {
	n := 0
	for _, ref := range s.refs {
		if ref.EntityType == et {
			n++
		}
	}
	return n, nil
}

type memoryItems struct {
	bySKU  map[string]erp.Item
	nextID int64

	createErr error
	updateErr error
}

func newMemoryItems() *memoryItems {
	return &memoryItems{bySKU: make(map[string]erp.Item)}
}

func (r *memoryItems) GetBySKU(_ context.Context, sku string) (erp.Item, error) {
	if item, ok := r.bySKU[sku]; ok {
		return item, nil
	}
	return erp.Item{}, erp.ErrNotFound
}

func (r *memoryItems) ListSKUs(_ context.Context) ([]string, error) {
	skus := make([]string, 0, len(r.bySKU))
	for sku := range r.bySKU {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus, nil
}

func (r *memoryItems) Create(_ context.Context, item erp.Item) (erp.Item, error) {
	if r.createErr != nil {
		return erp.Item{}, r.createErr
	}
	r.nextID++
	item.ID = r.nextID
	r.bySKU[item.SKU] = item
	return item, nil
}

func (r *memoryItems) Update(_ context.Context, id int64, item erp.Item) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	for sku, existing := range r.bySKU {
		if existing.ID == id {
			item.ID = id
			delete(r.bySKU, sku)
			r.bySKU[item.SKU] = item
			return nil
		}
	}
	return erp.ErrNotFound
}

func (r *memoryItems) UpdatePriceBySKU(_ context.Context, sku string, price decimal.Decimal, currency string) error {
	item, ok := r.bySKU[sku]
	if !ok {
		return erp.ErrNotFound
	}
	item.Price = price
	item.Currency = currency
	r.bySKU[sku] = item
	return nil
}

type fakeProductSource struct {
	pages        [][]salla.Product
	translations map[string][]salla.Product // lang -> single page of translated products
	created      []salla.ProductInput
	updated      map[string]salla.ProductInput

	listCalls int
	nextID    int64
}

func newFakeProductSource(pages ...[]salla.Product) *fakeProductSource {
	return &fakeProductSource{pages: pages, updated: make(map[string]salla.ProductInput), nextID: 90000}
}

func (s *fakeProductSource) ListProducts(_ context.Context, opts salla.ListOptions) ([]salla.Product, salla.Pagination, error) {
	s.listCalls++
	if opts.Lang != "" {
		if alt, ok := s.translations[opts.Lang]; ok {
			return alt, salla.Pagination{CurrentPage: opts.Page, TotalPages: 1}, nil
		}
	}
	if opts.Page < 1 || opts.Page > len(s.pages) {
		return nil, salla.Pagination{CurrentPage: opts.Page, TotalPages: len(s.pages)}, nil
	}
	return s.pages[opts.Page-1], salla.Pagination{CurrentPage: opts.Page, TotalPages: len(s.pages)}, nil
}

func (s *fakeProductSource) GetProduct(_ context.Context, id, lang string) (salla.Product, error) {
	if lang != "" {
		for _, product := range s.translations[lang] {
			if strconv.FormatInt(product.ID, 10) == id {
				return product, nil
			}
		}
	}
	for _, page := range s.pages {
		for _, product := range page {
			if strconv.FormatInt(product.ID, 10) == id {
				return product, nil
			}
		}
	}
	return salla.Product{}, salla.ErrNotFound
}

func (s *fakeProductSource) GetProductBySKU(_ context.Context, sku string) (salla.Product, error) {
	for _, page := range s.pages {
		for _, product := range page {
			if product.SKU == sku {
				return product, nil
			}
		}
	}
	return salla.Product{}, salla.ErrNotFound
}

func (s *fakeProductSource) CreateProduct(_ context.Context, input salla.ProductInput) (salla.Product, error) {
	s.created = append(s.created, input)
	s.nextID++
	return salla.Product{ID: s.nextID, SKU: input.SKU, Name: input.Name}, nil
}

func (s *fakeProductSource) UpdateProduct(_ context.Context, id string, input salla.ProductInput) (salla.Product, error) {
	s.updated[id] = input
	parsed, _ := strconv.ParseInt(id, 10, 64)
	return salla.Product{ID: parsed, SKU: input.SKU, Name: input.Name}, nil
}

type deniedLocker struct{}

func (deniedLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, nil
}

func testProduct(id int64, sku, name string, price float64) salla.Product {
	return salla.Product{
		ID: id, SKU: sku, Name: name,
		Price:    salla.Money{Amount: decimal.NewFromFloat(price), Currency: "SAR"},
		Quantity: 3,
		Status:   "sale",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestProductManager(source ProductSource, items erp.ItemRepository, xrefs XrefStore, opts ...ProductSyncOption) *ProductSyncManager {
	return NewProductSyncManager(source, items, xrefs, NoopLocker{}, testLogger(), opts...)
}

// --- product manager ---

func TestProductImportAll(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	xrefs := newMemoryXrefs()

	// A local item with a matching SKU must be linked, not duplicated.
	preexisting, err := items.Create(ctx, erp.Item{SKU: "SHOE-1", Name: "Old Shoe"})
	require.NoError(t, err)

	source := newFakeProductSource(
		[]salla.Product{testProduct(1, "SHOE-1", "Shoe", 100), testProduct(2, "HAT-1", "Hat", 25)},
		[]salla.Product{testProduct(3, "BAG-1", "Bag", 60)},
	)
	m := newTestProductManager(source, items, xrefs)

	result := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 2, result.Counts.Created)
	require.Equal(t, 1, result.Counts.Linked)
	require.Equal(t, 0, result.Counts.Failed)

	ref, err := xrefs.Resolve(ctx, EntityProduct, "1")
	require.NoError(t, err)
	require.Equal(t, preexisting.ID, ref.LocalID)

	// Second run over an unchanged catalog is a pure no-op.
	again := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, StatusSuccess, again.Status)
	require.Equal(t, Counts{}, again.Counts)

	// Remote change updates in place without creating a new local record.
	source.pages[0][1] = testProduct(2, "HAT-1", "Fancy Hat", 30)
	third := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, 1, third.Counts.Updated)
	require.Equal(t, 0, third.Counts.Created)

	hat, err := items.GetBySKU(ctx, "HAT-1")
	require.NoError(t, err)
	require.Equal(t, "Fancy Hat", hat.Name)
	refAfter, err := xrefs.Resolve(ctx, EntityProduct, "2")
	require.NoError(t, err)
	require.Equal(t, hat.ID, refAfter.LocalID)
}

func TestProductImportSKUFilter(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	source := newFakeProductSource([]salla.Product{
		testProduct(1, "A", "A", 1), testProduct(2, "B", "B", 2),
	})
	m := newTestProductManager(source, items, newMemoryXrefs())

	result := m.ImportAll(ctx, ImportOptions{SKUFilter: "B"})
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)
	_, err := items.GetBySKU(ctx, "A")
	require.ErrorIs(t, err, erp.ErrNotFound)
}

func TestProductImportContinuesOnBadRecord(t *testing.T) {
	ctx := context.Background()
	bad := salla.Product{ID: 2, SKU: "BAD", Price: salla.Money{Amount: decimal.NewFromInt(-5)}}
	source := newFakeProductSource([]salla.Product{
		testProduct(1, "OK-1", "Fine", 10), bad, testProduct(3, "OK-2", "Also Fine", 20),
	})
	m := newTestProductManager(source, newMemoryItems(), newMemoryXrefs())

	result := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 2, result.Counts.Created)
	require.Equal(t, 1, result.Counts.Failed)
	require.Len(t, result.Errors, 1)
}

func TestProductImportFailureThreshold(t *testing.T) {
	ctx := context.Background()
	var bad []salla.Product
	for i := int64(1); i <= 5; i++ {
		bad = append(bad, salla.Product{ID: i, SKU: "X" + strconv.FormatInt(i, 10)})
	}
	m := newTestProductManager(newFakeProductSource(bad), newMemoryItems(), newMemoryXrefs(),
		WithMaxFailures(3))

	result := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, StatusError, result.Status)
	require.Equal(t, 3, result.Counts.Failed)
}

func TestProductImportSingle(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	source := newFakeProductSource([]salla.Product{testProduct(7, "ONE", "One", 9)})
	m := newTestProductManager(source, items, newMemoryXrefs())

	result := m.ImportSingle(ctx, "7")
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)

	missing := m.ImportSingle(ctx, "404")
	require.Equal(t, StatusError, missing.Status)
}

func TestProductImportDuplicateSKU(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	page := []salla.Product{
		testProduct(1, "DUP", "First", 10),
		testProduct(2, "DUP", "Second", 20),
	}

	// Default: last write wins, both platform ids end up linked to the
	// single local item.
	m := newTestProductManager(newFakeProductSource(page), items, newMemoryXrefs())
	result := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)
	require.Equal(t, 1, result.Counts.Linked)
	item, err := items.GetBySKU(ctx, "DUP")
	require.NoError(t, err)
	require.Equal(t, "First", item.Name)

	// Strict mode surfaces the collision instead.
	strict := newTestProductManager(newFakeProductSource(page), newMemoryItems(), newMemoryXrefs(),
		WithStrictConflicts())
	strictResult := strict.ImportAll(ctx, ImportOptions{})
	require.Equal(t, 1, strictResult.Counts.Failed)
	require.Contains(t, strictResult.Errors[0], "claimed by both")
}

func TestProductImportLockHeld(t *testing.T) {
	ctx := context.Background()
	source := newFakeProductSource([]salla.Product{testProduct(1, "L", "Locked", 1)})
	m := NewProductSyncManager(source, newMemoryItems(), newMemoryXrefs(), deniedLocker{}, testLogger())

	result := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, 1, result.Counts.Failed)
	require.Equal(t, 0, result.Counts.Created)
}

func TestProductLinkExisting(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	_, err := items.Create(ctx, erp.Item{SKU: "HAVE", Name: "Have"})
	require.NoError(t, err)

	source := newFakeProductSource([]salla.Product{
		testProduct(1, "HAVE", "Have", 10),
		testProduct(2, "MISS", "Miss", 20),
	})
	xrefs := newMemoryXrefs()
	m := newTestProductManager(source, items, xrefs)

	result := m.LinkExisting(ctx)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Linked)
	require.Equal(t, 0, result.Counts.Created)

	// The unmatched remote product must not have produced anything.
	_, err = xrefs.Resolve(ctx, EntityProduct, "2")
	require.ErrorIs(t, err, ErrXrefNotFound)
	_, err = items.GetBySKU(ctx, "MISS")
	require.ErrorIs(t, err, erp.ErrNotFound)
}

func TestProductCreateLinks(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	_, err := items.Create(ctx, erp.Item{SKU: "REMOTE", Name: "Remote"})
	require.NoError(t, err)
	_, err = items.Create(ctx, erp.Item{SKU: "LOCAL-ONLY", Name: "Local"})
	require.NoError(t, err)

	source := newFakeProductSource([]salla.Product{testProduct(5, "REMOTE", "Remote", 10)})
	xrefs := newMemoryXrefs()
	m := newTestProductManager(source, items, xrefs)

	result := m.CreateLinks(ctx)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Linked)
	require.Contains(t, result.Message, "(1 total)")

	ref, err := xrefs.Resolve(ctx, EntityProduct, "5")
	require.NoError(t, err)
	require.Equal(t, int64(1), ref.LocalID)

	// Re-running creates nothing new.
	again := m.CreateLinks(ctx)
	require.Equal(t, 0, again.Counts.Linked)
}

func TestProductImportPrices(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	_, err := items.Create(ctx, erp.Item{SKU: "P-1", Price: decimal.NewFromInt(1), Currency: "SAR"})
	require.NoError(t, err)

	source := newFakeProductSource([]salla.Product{
		testProduct(1, "P-1", "Priced", 99.5),
		testProduct(2, "P-404", "No Local", 10),
	})
	m := newTestProductManager(source, items, newMemoryXrefs())

	result := m.ImportPrices(ctx)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.UpdatedPrices)
	require.Equal(t, 0, result.Counts.Failed)

	item, err := items.GetBySKU(ctx, "P-1")
	require.NoError(t, err)
	require.True(t, item.Price.Equal(decimal.NewFromFloat(99.5)))
}

func TestProductImportPricesDuplicateSKULastWriteWins(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	_, err := items.Create(ctx, erp.Item{SKU: "DUP", Price: decimal.NewFromInt(1), Currency: "SAR"})
	require.NoError(t, err)

	// Two remote products carry the same SKU; the later price in fetch
	// order is the one that sticks.
	source := newFakeProductSource([]salla.Product{
		testProduct(1, "DUP", "First", 10),
		testProduct(2, "DUP", "Second", 20),
	})
	m := newTestProductManager(source, items, newMemoryXrefs())

	result := m.ImportPrices(ctx)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 2, result.Counts.UpdatedPrices)

	item, err := items.GetBySKU(ctx, "DUP")
	require.NoError(t, err)
	require.True(t, item.Price.Equal(decimal.NewFromInt(20)))
}

func TestProductImportBilingual(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	source := newFakeProductSource([]salla.Product{
		{
			ID: 1, SKU: "SHOE-1", Name: "حذاء", Description: "حذاء جلدي",
			Price:    salla.Money{Amount: decimal.NewFromInt(100), Currency: "SAR"},
			Quantity: 3, Status: "sale",
		},
	})
	source.translations = map[string][]salla.Product{
		"en": {{
			ID: 1, SKU: "SHOE-1", Name: "Shoe", Description: "Leather shoe",
			Price:    salla.Money{Amount: decimal.NewFromInt(100), Currency: "SAR"},
			Quantity: 3, Status: "sale",
		}},
	}
	m := newTestProductManager(source, items, newMemoryXrefs(), WithLanguages("", "en"))

	result := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)

	item, err := items.GetBySKU(ctx, "SHOE-1")
	require.NoError(t, err)
	require.Equal(t, "حذاء", item.Name)
	require.Equal(t, "Shoe", item.NameEN)
	require.Equal(t, "Leather shoe", item.DescriptionEN)

	// Unchanged catalog stays a no-op with the translation in the hash.
	again := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, Counts{}, again.Counts)

	// A translation change alone is a real update.
	source.translations["en"][0].Name = "Sneaker"
	third := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, 1, third.Counts.Updated)
	item, err = items.GetBySKU(ctx, "SHOE-1")
	require.NoError(t, err)
	require.Equal(t, "Sneaker", item.NameEN)
}

func TestProductImportSingleBilingual(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	source := newFakeProductSource([]salla.Product{testProduct(7, "ONE", "واحد", 9)})
	source.translations = map[string][]salla.Product{
		"en": {testProduct(7, "ONE", "One", 9)},
	}
	m := newTestProductManager(source, items, newMemoryXrefs(), WithLanguages("", "en"))

	result := m.ImportSingle(ctx, "7")
	require.Equal(t, StatusSuccess, result.Status)

	item, err := items.GetBySKU(ctx, "ONE")
	require.NoError(t, err)
	require.Equal(t, "واحد", item.Name)
	require.Equal(t, "One", item.NameEN)
}

func TestProductPush(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	created, err := items.Create(ctx, erp.Item{SKU: "NEW", Name: "New Item", Price: decimal.NewFromInt(50), Quantity: 2})
	require.NoError(t, err)

	source := newFakeProductSource(nil)
	xrefs := newMemoryXrefs()
	m := newTestProductManager(source, items, xrefs)

	// No link, no remote product: created in Salla and linked back.
	result := m.Push(ctx, "NEW")
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)
	require.Len(t, source.created, 1)
	require.Equal(t, "NEW", source.created[0].SKU)

	ref, err := xrefs.ResolveLocal(ctx, EntityProduct, created.ID)
	require.NoError(t, err)

	// Linked item goes out as an update against the stored platform id.
	again := m.Push(ctx, "NEW")
	require.Equal(t, StatusSuccess, again.Status)
	require.Equal(t, 1, again.Counts.Updated)
	require.Contains(t, source.updated, ref.PlatformID)

	missing := m.Push(ctx, "NOPE")
	require.Equal(t, StatusError, missing.Status)
}

func TestProductPushLinksBySKU(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	item, err := items.Create(ctx, erp.Item{SKU: "MATCH", Name: "Match", Price: decimal.NewFromInt(5)})
	require.NoError(t, err)

	source := newFakeProductSource([]salla.Product{testProduct(31, "MATCH", "Remote Match", 5)})
	xrefs := newMemoryXrefs()
	m := newTestProductManager(source, items, xrefs)

	result := m.Push(ctx, "MATCH")
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Linked)
	require.Empty(t, source.created)
	require.Contains(t, source.updated, "31")

	ref, err := xrefs.ResolveLocal(ctx, EntityProduct, item.ID)
	require.NoError(t, err)
	require.Equal(t, "31", ref.PlatformID)
}

// --- category manager ---

type memoryCategories struct {
	byID   map[int64]erp.Category
	nextID int64
}

func newMemoryCategories() *memoryCategories {
	return &memoryCategories{byID: make(map[int64]erp.Category)}
}

func (r *memoryCategories) Get(_ context.Context, id int64) (erp.Category, error) {
	if c, ok := r.byID[id]; ok {
		return c, nil
	}
	return erp.Category{}, erp.ErrNotFound
}

func (r *memoryCategories) GetByName(_ context.Context, name string) (erp.Category, error) {
	for _, c := range r.byID {
		if c.Name == name {
			return c, nil
		}
	}
	return erp.Category{}, erp.ErrNotFound
}

func (r *memoryCategories) Create(_ context.Context, category erp.Category) (erp.Category, error) {
	r.nextID++
	category.ID = r.nextID
	r.byID[category.ID] = category
	return category, nil
}

func (r *memoryCategories) Update(_ context.Context, id int64, category erp.Category) error {
	if _, ok := r.byID[id]; !ok {
		return erp.ErrNotFound
	}
	category.ID = id
	r.byID[id] = category
	return nil
}

type fakeCategorySource struct {
	pages   [][]salla.Category
	created []salla.CategoryInput
	updated map[string]salla.CategoryInput
	nextID  int64
}

func newFakeCategorySource(pages ...[]salla.Category) *fakeCategorySource {
	return &fakeCategorySource{pages: pages, updated: make(map[string]salla.CategoryInput), nextID: 80000}
}

func (s *fakeCategorySource) ListCategories(_ context.Context, opts salla.ListOptions) ([]salla.Category, salla.Pagination, error) {
	if opts.Page < 1 || opts.Page > len(s.pages) {
		return nil, salla.Pagination{CurrentPage: opts.Page, TotalPages: len(s.pages)}, nil
	}
	return s.pages[opts.Page-1], salla.Pagination{CurrentPage: opts.Page, TotalPages: len(s.pages)}, nil
}

func (s *fakeCategorySource) CreateCategory(_ context.Context, input salla.CategoryInput) (salla.Category, error) {
	s.created = append(s.created, input)
	s.nextID++
	return salla.Category{ID: s.nextID, Name: input.Name, ParentID: input.ParentID}, nil
}

func (s *fakeCategorySource) UpdateCategory(_ context.Context, id string, input salla.CategoryInput) (salla.Category, error) {
	s.updated[id] = input
	parsed, _ := strconv.ParseInt(id, 10, 64)
	return salla.Category{ID: parsed, Name: input.Name}, nil
}

func TestCategoryImportAll(t *testing.T) {
	ctx := context.Background()
	categories := newMemoryCategories()
	existing, err := categories.Create(ctx, erp.Category{Name: "Shoes", IsActive: true})
	require.NoError(t, err)

	source := newFakeCategorySource([]salla.Category{
		{ID: 1, Name: "Shoes", Status: "active"},
		{ID: 2, Name: "Hats", Status: "active"},
		{ID: 3, Name: "Caps", ParentID: 2, Status: "active"},
	})
	xrefs := newMemoryXrefs()
	m := NewCategorySyncManager(source, categories, xrefs, testLogger())

	result := m.ImportAll(ctx)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 2, result.Counts.Created)
	require.Equal(t, 1, result.Counts.Linked)

	ref, err := xrefs.Resolve(ctx, EntityCategory, "1")
	require.NoError(t, err)
	require.Equal(t, existing.ID, ref.LocalID)

	// Caps came after Hats in the same page, so its parent resolves.
	capsRef, err := xrefs.Resolve(ctx, EntityCategory, "3")
	require.NoError(t, err)
	caps, err := categories.Get(ctx, capsRef.LocalID)
	require.NoError(t, err)
	require.NotNil(t, caps.ParentID)
	hatsRef, err := xrefs.Resolve(ctx, EntityCategory, "2")
	require.NoError(t, err)
	require.Equal(t, hatsRef.LocalID, *caps.ParentID)

	// Import again: linked categories are untouched even if renamed remotely.
	source.pages[0][1].Name = "Fancy Hats"
	again := m.ImportAll(ctx)
	require.Equal(t, Counts{}, again.Counts)
	hats, err := categories.Get(ctx, hatsRef.LocalID)
	require.NoError(t, err)
	require.Equal(t, "Hats", hats.Name)
}

func TestCategorySyncAllRefreshes(t *testing.T) {
	ctx := context.Background()
	categories := newMemoryCategories()
	source := newFakeCategorySource([]salla.Category{{ID: 1, Name: "Shoes", Status: "active"}})
	xrefs := newMemoryXrefs()
	m := NewCategorySyncManager(source, categories, xrefs, testLogger())

	first := m.SyncAll(ctx)
	require.Equal(t, 1, first.Counts.Created)

	source.pages[0][0].Name = "Footwear"
	second := m.SyncAll(ctx)
	require.Equal(t, 1, second.Counts.Updated)

	ref, err := xrefs.Resolve(ctx, EntityCategory, "1")
	require.NoError(t, err)
	category, err := categories.Get(ctx, ref.LocalID)
	require.NoError(t, err)
	require.Equal(t, "Footwear", category.Name)

	// Unchanged content is skipped on the next deep pass.
	third := m.SyncAll(ctx)
	require.Equal(t, Counts{}, third.Counts)
}

func TestCategoryPushOne(t *testing.T) {
	ctx := context.Background()
	categories := newMemoryCategories()
	parent, err := categories.Create(ctx, erp.Category{Name: "Apparel", IsActive: true})
	require.NoError(t, err)
	child, err := categories.Create(ctx, erp.Category{Name: "Shirts", ParentID: &parent.ID, IsActive: true})
	require.NoError(t, err)

	source := newFakeCategorySource()
	xrefs := newMemoryXrefs()
	_, err = xrefs.Upsert(ctx, CrossReference{EntityType: EntityCategory, PlatformID: "500", LocalID: parent.ID, ContentHash: "h"})
	require.NoError(t, err)
	m := NewCategorySyncManager(source, categories, xrefs, testLogger())

	result := m.PushOne(ctx, child.ID)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)
	require.Len(t, source.created, 1)
	require.Equal(t, "Shirts", source.created[0].Name)
	require.Equal(t, int64(500), source.created[0].ParentID)

	// Pushing again updates through the link created above.
	again := m.PushOne(ctx, child.ID)
	require.Equal(t, 1, again.Counts.Updated)
	require.Len(t, source.updated, 1)

	missing := m.PushOne(ctx, 999)
	require.Equal(t, StatusError, missing.Status)
}

// --- order manager ---

type memoryStatuses struct {
	byCode map[string]erp.OrderStatus
	nextID int64
}

func newMemoryStatuses() *memoryStatuses {
	return &memoryStatuses{byCode: make(map[string]erp.OrderStatus)}
}

func (r *memoryStatuses) GetByCode(_ context.Context, code string) (erp.OrderStatus, error) {
	if s, ok := r.byCode[code]; ok {
		return s, nil
	}
	return erp.OrderStatus{}, erp.ErrNotFound
}

func (r *memoryStatuses) Create(_ context.Context, status erp.OrderStatus) (erp.OrderStatus, error) {
	r.nextID++
	status.ID = r.nextID
	r.byCode[status.Code] = status
	return status, nil
}

func (r *memoryStatuses) Update(_ context.Context, id int64, status erp.OrderStatus) error {
	for code, existing := range r.byCode {
		if existing.ID == id {
			status.ID = id
			delete(r.byCode, code)
			r.byCode[status.Code] = status
			return nil
		}
	}
	return erp.ErrNotFound
}

type memoryOrders struct {
	byID   map[int64]erp.SalesOrder
	lines  map[int64][]erp.SalesOrderLine
	nextID int64
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{byID: make(map[int64]erp.SalesOrder), lines: make(map[int64][]erp.SalesOrderLine)}
}

func (r *memoryOrders) Get(_ context.Context, id int64) (erp.SalesOrder, error) {
	if o, ok := r.byID[id]; ok {
		return o, nil
	}
	return erp.SalesOrder{}, erp.ErrNotFound
}

func (r *memoryOrders) Create(_ context.Context, order erp.SalesOrder) (erp.SalesOrder, error) {
	r.nextID++
	order.ID = r.nextID
	r.byID[order.ID] = order
	return order, nil
}

func (r *memoryOrders) AddLines(_ context.Context, orderID int64, lines []erp.SalesOrderLine) error {
	if _, ok := r.byID[orderID]; !ok {
		return erp.ErrNotFound
	}
	r.lines[orderID] = append(r.lines[orderID], lines...)
	return nil
}

func (r *memoryOrders) UpdateStatus(_ context.Context, id int64, status string) error {
	o, ok := r.byID[id]
	if !ok {
		return erp.ErrNotFound
	}
	o.Status = status
	r.byID[id] = o
	return nil
}

type fakeOrderSource struct {
	pages    [][]salla.Order
	items    map[string][]salla.OrderItem
	statuses []salla.OrderStatus
}

func (s *fakeOrderSource) ListOrders(_ context.Context, opts salla.ListOptions) ([]salla.Order, salla.Pagination, error) {
	if opts.Page < 1 || opts.Page > len(s.pages) {
		return nil, salla.Pagination{CurrentPage: opts.Page, TotalPages: len(s.pages)}, nil
	}
	return s.pages[opts.Page-1], salla.Pagination{CurrentPage: opts.Page, TotalPages: len(s.pages)}, nil
}

func (s *fakeOrderSource) ListOrderItems(_ context.Context, orderID string) ([]salla.OrderItem, error) {
	return s.items[orderID], nil
}

func (s *fakeOrderSource) ListOrderStatuses(context.Context) ([]salla.OrderStatus, error) {
	return s.statuses, nil
}

func testOrderItem(id int64, sku, name string, qty int, total int64) salla.OrderItem {
	item := salla.OrderItem{ID: id, SKU: sku, Name: name, Quantity: qty}
	item.Amounts.Total = salla.Money{Amount: decimal.NewFromInt(total)}
	return item
}

func testOrder(id int64, slug string, total int64) salla.Order {
	return salla.Order{
		ID:       id,
		Status:   salla.OrderStatus{Slug: slug},
		Customer: salla.Customer{FirstName: "Test", LastName: "Buyer"},
		Amounts:  salla.OrderAmounts{Total: salla.Money{Amount: decimal.NewFromInt(total), Currency: "SAR"}},
		Date:     "2026-08-01 10:00:00",
	}
}

func TestOrderImport(t *testing.T) {
	ctx := context.Background()
	orders := newMemoryOrders()
	source := &fakeOrderSource{pages: [][]salla.Order{{testOrder(100, "pending", 55)}}}
	xrefs := newMemoryXrefs()
	m := NewOrderSyncManager(source, orders, newMemoryStatuses(), xrefs, testLogger())

	result := m.ImportOrders(ctx)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)

	ref, err := xrefs.Resolve(ctx, EntityOrder, "100")
	require.NoError(t, err)
	created, err := orders.Get(ctx, ref.LocalID)
	require.NoError(t, err)
	require.Equal(t, "draft", created.Status)

	// Unchanged order: nothing happens on a second pass.
	again := m.ImportOrders(ctx)
	require.Equal(t, Counts{}, again.Counts)

	// Remote status moved on: the local order follows, no new record.
	source.pages[0][0] = testOrder(100, "delivered", 55)
	third := m.ImportOrders(ctx)
	require.Equal(t, 1, third.Counts.Updated)
	require.Equal(t, 0, third.Counts.Created)
	updated, err := orders.Get(ctx, ref.LocalID)
	require.NoError(t, err)
	require.Equal(t, "completed", updated.Status)
}

func TestOrderImportStoresLines(t *testing.T) {
	ctx := context.Background()
	orders := newMemoryOrders()
	source := &fakeOrderSource{
		pages: [][]salla.Order{{testOrder(200, "pending", 75)}},
		items: map[string][]salla.OrderItem{
			"200": {
				testOrderItem(1, "SHOE-1", "Shoe", 2, 50),
				testOrderItem(2, "", "Gift Wrap", 1, 25), // no SKU, dropped
			},
		},
	}
	xrefs := newMemoryXrefs()
	m := NewOrderSyncManager(source, orders, newMemoryStatuses(), xrefs, testLogger())

	result := m.ImportOrders(ctx)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)

	ref, err := xrefs.Resolve(ctx, EntityOrder, "200")
	require.NoError(t, err)
	lines := orders.lines[ref.LocalID]
	require.Len(t, lines, 1)
	require.Equal(t, "SHOE-1", lines[0].SKU)
	require.Equal(t, 2, lines[0].Quantity)
	require.True(t, lines[0].Total.Equal(decimal.NewFromInt(50)))

	// A status update on a later pass must not duplicate the lines.
	source.pages[0][0] = testOrder(200, "delivered", 75)
	again := m.ImportOrders(ctx)
	require.Equal(t, 1, again.Counts.Updated)
	require.Len(t, orders.lines[ref.LocalID], 1)
}

func TestOrderImportSkipsInvalid(t *testing.T) {
	ctx := context.Background()
	source := &fakeOrderSource{pages: [][]salla.Order{{
		testOrder(1, "pending", 10),
		{ID: 2, Status: salla.OrderStatus{Slug: "pending"}}, // zero total
	}}}
	m := NewOrderSyncManager(source, newMemoryOrders(), newMemoryStatuses(), newMemoryXrefs(), testLogger())

	result := m.ImportOrders(ctx)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)
	require.Equal(t, 1, result.Counts.Failed)
}

func TestOrderImportStatuses(t *testing.T) {
	ctx := context.Background()
	statuses := newMemoryStatuses()
	_, err := statuses.Create(ctx, erp.OrderStatus{Code: "completed", Name: "Done"})
	require.NoError(t, err)

	source := &fakeOrderSource{statuses: []salla.OrderStatus{
		{ID: 1, Name: "Completed", Slug: "completed"},
		{ID: 2, Name: "Under Review", Slug: "under_review"},
		{ID: 3, Name: ""}, // missing slug
	}}
	xrefs := newMemoryXrefs()
	m := NewOrderSyncManager(source, newMemoryOrders(), statuses, xrefs, testLogger())

	result := m.ImportStatuses(ctx)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)
	require.Equal(t, 1, result.Counts.Linked)
	require.Equal(t, 1, result.Counts.Failed)

	// Renamed remote status flows through on the next run.
	source.statuses[1].Name = "In Review"
	again := m.ImportStatuses(ctx)
	require.Equal(t, 1, again.Counts.Updated)
	reviewed, err := statuses.GetByCode(ctx, "under_review")
	require.NoError(t, err)
	require.Equal(t, "In Review", reviewed.Name)
}

// --- customer manager ---

type memoryCustomers struct {
	byID   map[int64]erp.Customer
	nextID int64
}

func newMemoryCustomers() *memoryCustomers {
	return &memoryCustomers{byID: make(map[int64]erp.Customer)}
}

func (r *memoryCustomers) GetByName(_ context.Context, name string) (erp.Customer, error) {
	for _, c := range r.byID {
		if c.Name == name {
			return c, nil
		}
	}
	return erp.Customer{}, erp.ErrNotFound
}

func (r *memoryCustomers) Create(_ context.Context, customer erp.Customer) (erp.Customer, error) {
	r.nextID++
	customer.ID = r.nextID
	r.byID[customer.ID] = customer
	return customer, nil
}

func (r *memoryCustomers) Update(_ context.Context, id int64, customer erp.Customer) error {
	if _, ok := r.byID[id]; !ok {
		return erp.ErrNotFound
	}
	customer.ID = id
	r.byID[id] = customer
	return nil
}

type fakeCustomerSource struct {
	pages [][]salla.Customer
}

func (s *fakeCustomerSource) ListCustomers(_ context.Context, opts salla.ListOptions) ([]salla.Customer, salla.Pagination, error) {
	if opts.Page < 1 || opts.Page > len(s.pages) {
		return nil, salla.Pagination{CurrentPage: opts.Page, TotalPages: len(s.pages)}, nil
	}
	return s.pages[opts.Page-1], salla.Pagination{CurrentPage: opts.Page, TotalPages: len(s.pages)}, nil
}

func TestCustomerImport(t *testing.T) {
	ctx := context.Background()
	customers := newMemoryCustomers()
	existing, err := customers.Create(ctx, erp.Customer{Name: "Nora Ali"})
	require.NoError(t, err)

	source := &fakeCustomerSource{pages: [][]salla.Customer{{
		{ID: 1, FirstName: "Nora", LastName: "Ali", Email: "nora@example.com"},
		{ID: 2, FirstName: "Sami", LastName: "Hasan", MobileCode: "+966", Mobile: "500000001"},
		{FirstName: "Ghost"}, // no platform id
	}}}
	xrefs := newMemoryXrefs()
	m := NewCustomerSyncManager(source, customers, xrefs, testLogger())

	result := m.ImportAll(ctx)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)
	require.Equal(t, 1, result.Counts.Linked)
	require.Equal(t, 1, result.Counts.Failed)

	// The same-name customer was linked, not duplicated.
	ref, err := xrefs.Resolve(ctx, EntityCustomer, "1")
	require.NoError(t, err)
	require.Equal(t, existing.ID, ref.LocalID)

	sami, err := customers.GetByName(ctx, "Sami Hasan")
	require.NoError(t, err)
	require.Equal(t, "+966500000001", sami.Phone)

	// Second run over unchanged customers is a no-op.
	again := m.ImportAll(ctx)
	require.Equal(t, 0, again.Counts.Created)
	require.Equal(t, 0, again.Counts.Updated)
	require.Equal(t, 0, again.Counts.Linked)

	// A remote email change flows through the existing link.
	source.pages[0][1].Email = "sami@example.com"
	third := m.ImportAll(ctx)
	require.Equal(t, 1, third.Counts.Updated)
	sami, err = customers.GetByName(ctx, "Sami Hasan")
	require.NoError(t, err)
	require.Equal(t, "sami@example.com", sami.Email)
}

func TestCustomerImportNamelessFallsBackToID(t *testing.T) {
	ctx := context.Background()
	customers := newMemoryCustomers()
	source := &fakeCustomerSource{pages: [][]salla.Customer{{{ID: 42, Email: "x@example.com"}}}}
	m := NewCustomerSyncManager(source, customers, newMemoryXrefs(), testLogger())

	result := m.ImportAll(ctx)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Created)

	c, err := customers.GetByName(ctx, "Salla Customer 42")
	require.NoError(t, err)
	require.Equal(t, "x@example.com", c.Email)
}

func TestRunCancellationBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := newFakeProductSource([]salla.Product{testProduct(1, "A", "A", 1)})
	m := newTestProductManager(source, newMemoryItems(), newMemoryXrefs())

	result := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, StatusError, result.Status)
	require.Equal(t, 0, source.listCalls)
}

func TestProductImportUpsertErrorCounted(t *testing.T) {
	ctx := context.Background()
	items := newMemoryItems()
	items.createErr = errors.New("db down")
	source := newFakeProductSource([]salla.Product{testProduct(1, "E", "Err", 1)})
	m := newTestProductManager(source, items, newMemoryXrefs())

	result := m.ImportAll(ctx, ImportOptions{})
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, 1, result.Counts.Failed)
	require.Contains(t, result.Errors[0], "db down")
}
