// Package http exposes the synchronization operations as a JSON API. Every
// sync endpoint answers with the run result: status, message and the
// per-record counters.
package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/salla-bridge/salla-bridge/internal/platform/httpx"
	"github.com/salla-bridge/salla-bridge/internal/salla"
	syncengine "github.com/salla-bridge/salla-bridge/internal/sync"
	"github.com/salla-bridge/salla-bridge/jobs"
)

// Handler serves the sync and OAuth endpoints.
type Handler struct {
	logger     *slog.Logger
	products   *syncengine.ProductSyncManager
	categories *syncengine.CategorySyncManager
	orders     *syncengine.OrderSyncManager
	customers  *syncengine.CustomerSyncManager
	dispatcher *jobs.Dispatcher
	jobStore   jobs.JobStore
	auth       *salla.Auth
	validator  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, products *syncengine.ProductSyncManager, categories *syncengine.CategorySyncManager, orders *syncengine.OrderSyncManager, customers *syncengine.CustomerSyncManager, dispatcher *jobs.Dispatcher, jobStore jobs.JobStore, auth *salla.Auth) *Handler {
	return &Handler{
		logger:     logger,
		products:   products,
		categories: categories,
		orders:     orders,
		customers:  customers,
		dispatcher: dispatcher,
		jobStore:   jobStore,
		auth:       auth,
		validator:  validator.New(),
	}
}

// MountRoutes registers sync routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sync", func(r chi.Router) {
		r.Post("/products/import", h.importProducts)
		r.Post("/products/import-job", h.importProductsJob)
		r.Post("/products/{sallaID}/import", h.importSingleProduct)
		r.Post("/items/{sku}/push", h.pushProduct)
		r.Post("/products/links", h.createProductLinks)
		r.Post("/products/link-existing", h.linkExistingProducts)
		r.Post("/products/prices/import", h.importPrices)

		r.Post("/categories/import", h.importCategories)
		r.Post("/categories/import-all", h.syncAllCategories)
		r.Post("/categories/{id}/push", h.pushCategory)

		r.Post("/orders/import", h.importOrders)
		r.Post("/orders/statuses/import", h.importOrderStatuses)

		r.Post("/customers/import", h.importCustomers)
		r.Post("/customers/import-job", h.importCustomersJob)

		r.Get("/jobs/{id}", h.jobStatus)
	})
	r.Route("/oauth", func(r chi.Router) {
		r.Get("/connect", h.oauthConnect)
		r.Get("/callback", h.oauthCallback)
	})
}

type importProductsRequest struct {
	SKU string `json:"sku" validate:"omitempty,max=128"`
}

// decodeOptional parses the body when one is present. An empty body is
// valid for every sync endpoint.
func (h *Handler) decodeOptional(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.validator.Struct(target)
}

// respondResult writes the run result. A failed run is still a handled
// request; 502 signals the sync could not complete, not a handler crash.
func respondResult(w http.ResponseWriter, result syncengine.Result) {
	status := http.StatusOK
	if result.Status != syncengine.StatusSuccess {
		status = http.StatusBadGateway
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) importProducts(w http.ResponseWriter, r *http.Request) {
	var req importProductsRequest
	if err := h.decodeOptional(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	respondResult(w, h.products.ImportAll(r.Context(), syncengine.ImportOptions{SKUFilter: req.SKU}))
}

func (h *Handler) importProductsJob(w http.ResponseWriter, r *http.Request) {
	var req importProductsRequest
	if err := h.decodeOptional(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	job, err := h.dispatcher.Dispatch(r.Context(), jobs.TaskProductImport, jobs.SyncTaskPayload{SKUFilter: req.SKU})
	if err != nil {
		h.logger.Error("dispatch product import", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Dispatch Failed", "could not queue the import job")
		return
	}
	httpx.JSON(w, http.StatusAccepted, job)
}

func (h *Handler) importSingleProduct(w http.ResponseWriter, r *http.Request) {
	sallaID := chi.URLParam(r, "sallaID")
	if _, err := strconv.ParseInt(sallaID, 10, 64); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "salla product id must be numeric")
		return
	}
	respondResult(w, h.products.ImportSingle(r.Context(), sallaID))
}

func (h *Handler) pushProduct(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	if sku == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "sku is required")
		return
	}
	respondResult(w, h.products.Push(r.Context(), sku))
}

func (h *Handler) createProductLinks(w http.ResponseWriter, r *http.Request) {
	respondResult(w, h.products.CreateLinks(r.Context()))
}

func (h *Handler) linkExistingProducts(w http.ResponseWriter, r *http.Request) {
	respondResult(w, h.products.LinkExisting(r.Context()))
}

func (h *Handler) importPrices(w http.ResponseWriter, r *http.Request) {
	respondResult(w, h.products.ImportPrices(r.Context()))
}

func (h *Handler) importCategories(w http.ResponseWriter, r *http.Request) {
	respondResult(w, h.categories.ImportAll(r.Context()))
}

func (h *Handler) syncAllCategories(w http.ResponseWriter, r *http.Request) {
	respondResult(w, h.categories.SyncAll(r.Context()))
}

func (h *Handler) pushCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "category id must be numeric")
		return
	}
	respondResult(w, h.categories.PushOne(r.Context(), id))
}

func (h *Handler) importOrders(w http.ResponseWriter, r *http.Request) {
	respondResult(w, h.orders.ImportOrders(r.Context()))
}

func (h *Handler) importOrderStatuses(w http.ResponseWriter, r *http.Request) {
	respondResult(w, h.orders.ImportStatuses(r.Context()))
}

func (h *Handler) importCustomers(w http.ResponseWriter, r *http.Request) {
	respondResult(w, h.customers.ImportAll(r.Context()))
}

func (h *Handler) importCustomersJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.dispatcher.Dispatch(r.Context(), jobs.TaskCustomerImport, jobs.SyncTaskPayload{})
	if err != nil {
		h.logger.Error("dispatch customer import", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Dispatch Failed", "could not queue the import job")
		return
	}
	httpx.JSON(w, http.StatusAccepted, job)
}

func (h *Handler) jobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "job id must be a uuid")
		return
	}
	job, err := h.jobStore.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such job")
		return
	}
	if err != nil {
		h.logger.Error("load job", slog.String("job_id", id.String()), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

// oauthConnect redirects the merchant's browser into the Salla consent
// screen. State is a throwaway uuid; the callback only needs the code.
func (h *Handler) oauthConnect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.auth.AuthorizationURL(uuid.NewString()), http.StatusFound)
}

func (h *Handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "missing authorization code")
		return
	}
	token, err := h.auth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth exchange", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "OAuth Exchange Failed", "could not exchange the authorization code")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":     "connected",
		"expires_at": token.ExpiresAt,
	})
}
