package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snuffspec/internal/access"
	"github.com/sakif/snuffspec/internal/catalog"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/repository"
	"github.com/sakif/snuffspec/internal/service"
)

// SpecificationHandler handles writes to specification records and the
// record listings.
type SpecificationHandler struct {
	specs    *service.SpecificationService
	products catalog.Source
	logger   *slog.Logger
}

func NewSpecificationHandler(specs *service.SpecificationService, products catalog.Source, logger *slog.Logger) *SpecificationHandler {
	return &SpecificationHandler{specs: specs, products: products, logger: logger}
}

// HandleSave records a specification for a product.
//
// HTTP: POST /specification/{productID}
//
//	{"easeOfUse": "Beginner", "nicotineContent": "Low"}
//
// productTitle may be omitted; it is then taken from the catalog.
func (h *SpecificationHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	id, err := productIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var in service.SpecificationInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	in.ProductID = id

	if strings.TrimSpace(in.ProductTitle) == "" {
		product, err := h.products.GetProduct(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		in.ProductTitle = product.Title
	}

	identity, _ := access.IdentityFromContext(r.Context())
	rec, err := h.specs.Save(r.Context(), identity, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, rec)
}

// HandleMine lists the caller's records.
//
// HTTP: GET /specification/mine
func (h *SpecificationHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	identity, _ := access.IdentityFromContext(r.Context())
	recs, err := h.specs.ListMine(r.Context(), identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(recs))
}

// HandleAll lists every record, newest first.
//
// HTTP: GET /specification/all?limit=20&offset=40
func (h *SpecificationHandler) HandleAll(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	recs, err := h.specs.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(recs))
}

type patchBody struct {
	ProductTitle    *string                `json:"productTitle"`
	EaseOfUse       *model.EaseOfUse       `json:"easeOfUse"`
	NicotineContent *model.NicotineContent `json:"nicotineContent"`
}

// HandleUpdate changes the fields present in the body.
//
// HTTP: PATCH /specification/records/{id}  {"nicotineContent": "High"}
func (h *SpecificationHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var body patchBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	identity, _ := access.IdentityFromContext(r.Context())
	rec, err := h.specs.Update(r.Context(), identity, chi.URLParam(r, "id"), repository.SpecificationPatch{
		ProductTitle:    body.ProductTitle,
		EaseOfUse:       body.EaseOfUse,
		NicotineContent: body.NicotineContent,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

// HandleDelete removes a record the caller owns.
//
// HTTP: DELETE /specification/records/{id}
func (h *SpecificationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	identity, _ := access.IdentityFromContext(r.Context())
	if err := h.specs.Delete(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
