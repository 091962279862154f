package httpapi

import (
	"net/http"
	"strings"

	"fakturin/backend/internal/domain"
	"fakturin/backend/internal/store"
)

func (a *API) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]any{"draft": a.service.NewDraft(r.Context())})
}

func (a *API) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := a.service.Draft(r.Context(), pathVar(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": draft})
}

func (a *API) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardDraft(r.Context(), pathVar(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetDraftCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.DraftCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, err)
		return
	}
	draft, err := a.service.SetDraftCustomer(r.Context(), pathVar(r, "id"), req.CustomerID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": draft})
}

// handleAddDraftItem accepts either a product id or a scanned sku code.
func (a *API) handleAddDraftItem(w http.ResponseWriter, r *http.Request) {
	var req domain.DraftItemRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, err)
		return
	}

	var (
		draft domain.Draft
		err   error
	)
	switch {
	case strings.TrimSpace(req.ProductID) != "":
		draft, err = a.service.AddDraftProduct(r.Context(), pathVar(r, "id"), req.ProductID)
	case strings.TrimSpace(req.SKUCode) != "":
		draft, err = a.service.AddDraftProductBySKU(r.Context(), pathVar(r, "id"), req.SKUCode)
	default:
		err = store.Invalid("product_id", "or sku_code is required")
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": draft})
}

func (a *API) handleSetDraftQuantity(w http.ResponseWriter, r *http.Request) {
	var req domain.DraftQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeServiceError(w, err)
		return
	}
	draft, err := a.service.SetDraftQuantity(r.Context(), pathVar(r, "id"), pathVar(r, "productId"), req.Quantity)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": draft})
}

func (a *API) handleRemoveDraftItem(w http.ResponseWriter, r *http.Request) {
	draft, err := a.service.RemoveDraftProduct(r.Context(), pathVar(r, "id"), pathVar(r, "productId"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": draft})
}

func (a *API) handlePreviewDraft(w http.ResponseWriter, r *http.Request) {
	preview, err := a.service.PreviewDraftNumber(r.Context(), pathVar(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (a *API) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	inv, err := a.service.SubmitDraft(r.Context(), pathVar(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invoice": inv})
}
