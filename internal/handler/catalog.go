package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/catalog"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/service"
)

// CatalogHandler serves the product list and the product detail page.
type CatalogHandler struct {
	products catalog.Source
	specs    *service.SpecificationService
	logger   *slog.Logger
}

func NewCatalogHandler(products catalog.Source, specs *service.SpecificationService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{products: products, specs: specs, logger: logger}
}

// HandleList returns the catalog, filtered by ?q= when given.
//
// HTTP: GET /?q=mint
func (h *CatalogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("listing products", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	if q := r.URL.Query().Get("q"); q != "" {
		products = catalog.Search(products, q)
	}
	writeData(w, http.StatusOK, products)
}

type productPage struct {
	Product        *model.Product              `json:"product"`
	Specifications []model.SpecificationRecord `json:"specifications"`
}

// HandleProduct returns one product with every specification recorded for it.
// The two lookups run concurrently; the first failure cancels the other.
//
// HTTP: GET /specification/{productID}
func (h *CatalogHandler) HandleProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var page productPage
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		p, err := h.products.GetProduct(ctx, id)
		page.Product = p
		return err
	})
	g.Go(func() error {
		recs, err := h.specs.ListByProduct(ctx, id)
		page.Specifications = recs
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, err)
		return
	}

	if page.Specifications == nil {
		page.Specifications = []model.SpecificationRecord{}
	}
	writeData(w, http.StatusOK, page)
}

func productIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed("productId", "Invalid product ID")
	}
	return id, nil
}
