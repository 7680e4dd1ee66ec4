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

// CategorySource is the slice of the Salla client the category manager needs.
type CategorySource interface {
	ListCategories(ctx context.Context, opts salla.ListOptions) ([]salla.Category, salla.Pagination, error)
	CreateCategory(ctx context.Context, input salla.CategoryInput) (salla.Category, error)
	UpdateCategory(ctx context.Context, id string, input salla.CategoryInput) (salla.Category, error)
}

// CategorySyncManager reconciles Salla categories with local ones.
// Parents are resolved within the run: a child whose parent has not been
// imported yet is still created, with parent attached on a later pass.
type CategorySyncManager struct {
	source     CategorySource
	categories erp.CategoryRepository
	xrefs      XrefStore
	logger     *slog.Logger

	perPage     int
	maxFailures int
}

// NewCategorySyncManager constructs the manager.
func NewCategorySyncManager(source CategorySource, categories erp.CategoryRepository, xrefs XrefStore, logger *slog.Logger) *CategorySyncManager {
	return &CategorySyncManager{
		source:      source,
		categories:  categories,
		xrefs:       xrefs,
		logger:      logger,
		perPage:     50,
		maxFailures: DefaultMaxFailures,
	}
}

// ImportAll pulls remote categories and links or creates local ones by name.
// Already-linked categories are left untouched.
func (m *CategorySyncManager) ImportAll(ctx context.Context) Result {
	return m.walk(ctx, false, "categories imported")
}

// SyncAll is the deep refresh: like ImportAll, but linked categories whose
// remote content changed are updated in place.
func (m *CategorySyncManager) SyncAll(ctx context.Context) Result {
	return m.walk(ctx, true, "categories synchronized")
}

func (m *CategorySyncManager) walk(ctx context.Context, refresh bool, okMessage string) Result {
	r := newRun(m.maxFailures)
	page := 1
	for {
		if err := r.checkpoint(ctx); err != nil {
			return r.finish(err, okMessage)
		}
		r.enter(StateFetching)
		categories, pagination, err := m.source.ListCategories(ctx, salla.ListOptions{Page: page, PerPage: m.perPage})
		if err != nil {
			return r.failure(fmt.Errorf("fetch categories page %d: %w", page, err))
		}
		for _, category := range categories {
			if err := m.importOne(ctx, r, category, refresh); err != nil {
				return r.finish(err, okMessage)
			}
		}
		if !pagination.HasMore() || len(categories) == 0 {
			return r.finish(nil, okMessage)
		}
		page = pagination.CurrentPage + 1
	}
}

func (m *CategorySyncManager) importOne(ctx context.Context, r *run, category salla.Category, refresh bool) error {
	r.enter(StateMapping)
	platformID := strconv.FormatInt(category.ID, 10)

	draft, err := MapCategory(category)
	if err != nil {
		m.logger.Warn("skipping category", slog.String("platform_id", platformID), slog.Any("error", err))
		return r.recordFailure(err)
	}

	r.enter(StateUpserting)
	hash := ContentHash(draft)
	ref, err := m.xrefs.Resolve(ctx, EntityCategory, platformID)
	switch {
	case err == nil:
		if !refresh || ref.ContentHash == hash {
			return nil
		}
		record := erp.Category{Name: draft.Name, IsActive: draft.Active}
		record.ParentID = m.localParent(ctx, draft.PlatformParentID)
		if err := m.categories.Update(ctx, ref.LocalID, record); err != nil {
			return r.recordFailure(fmt.Errorf("update category %q: %w", draft.Name, err))
		}
		if _, err := m.xrefs.Upsert(ctx, CrossReference{
			EntityType: EntityCategory, PlatformID: platformID, LocalID: ref.LocalID, ContentHash: hash,
		}); err != nil {
			return r.recordFailure(fmt.Errorf("upsert xref %s: %w", platformID, err))
		}
		r.counts.Updated++
		return nil

	case errors.Is(err, ErrXrefNotFound):
		existing, getErr := m.categories.GetByName(ctx, draft.Name)
		switch {
		case getErr == nil:
			if _, err := m.xrefs.Upsert(ctx, CrossReference{
				EntityType: EntityCategory, PlatformID: platformID, LocalID: existing.ID, ContentHash: hash,
			}); err != nil {
				return r.recordFailure(fmt.Errorf("link category %q: %w", draft.Name, err))
			}
			r.counts.Linked++
			return nil
		case errors.Is(getErr, erp.ErrNotFound):
			record := erp.Category{Name: draft.Name, IsActive: draft.Active}
			record.ParentID = m.localParent(ctx, draft.PlatformParentID)
			created, createErr := m.categories.Create(ctx, record)
			if createErr != nil {
				return r.recordFailure(fmt.Errorf("create category %q: %w", draft.Name, createErr))
			}
			if _, err := m.xrefs.Upsert(ctx, CrossReference{
				EntityType: EntityCategory, PlatformID: platformID, LocalID: created.ID, ContentHash: hash,
			}); err != nil {
				return r.recordFailure(fmt.Errorf("upsert xref %s: %w", platformID, err))
			}
			r.counts.Created++
			return nil
		default:
			return r.recordFailure(fmt.Errorf("lookup category %q: %w", draft.Name, getErr))
		}

	default:
		return r.recordFailure(fmt.Errorf("resolve xref %s: %w", platformID, err))
	}
}

// localParent resolves a platform parent id to the local category id, nil
// when the parent is absent or not yet imported.
func (m *CategorySyncManager) localParent(ctx context.Context, platformParentID string) *int64 {
	if platformParentID == "" {
		return nil
	}
	ref, err := m.xrefs.Resolve(ctx, EntityCategory, platformParentID)
	if err != nil {
		return nil
	}
	return &ref.LocalID
}

// PushOne sends one local category to Salla: update through the existing
// link, otherwise create the remote category and link it.
func (m *CategorySyncManager) PushOne(ctx context.Context, localID int64) Result {
	r := newRun(m.maxFailures)
	r.enter(StateFetching)

	category, err := m.categories.Get(ctx, localID)
	if err != nil {
		return r.failure(fmt.Errorf("load category %d: %w", localID, err))
	}

	input := salla.CategoryInput{Name: category.Name}
	if category.ParentID != nil {
		if parentRef, err := m.xrefs.ResolveLocal(ctx, EntityCategory, *category.ParentID); err == nil {
			if pid, perr := strconv.ParseInt(parentRef.PlatformID, 10, 64); perr == nil {
				input.ParentID = pid
			}
		}
	}

	r.enter(StateUpserting)
	if ref, err := m.xrefs.ResolveLocal(ctx, EntityCategory, localID); err == nil {
		if _, err := m.source.UpdateCategory(ctx, ref.PlatformID, input); err != nil {
			return r.failure(fmt.Errorf("update salla category %s: %w", ref.PlatformID, err))
		}
		r.counts.Updated++
		return r.success(fmt.Sprintf("category %q updated in salla", category.Name))
	}

	created, err := m.source.CreateCategory(ctx, input)
	if err != nil {
		return r.failure(fmt.Errorf("create salla category %q: %w", category.Name, err))
	}
	if _, err := m.xrefs.Upsert(ctx, CrossReference{
		EntityType:  EntityCategory,
		PlatformID:  strconv.FormatInt(created.ID, 10),
		LocalID:     localID,
		ContentHash: ContentHash(input),
	}); err != nil {
		return r.failure(fmt.Errorf("link category %q: %w", category.Name, err))
	}
	r.counts.Created++
	return r.success(fmt.Sprintf("category %q created in salla", category.Name))
}
