package httpapi

import (
	"net/http"

	"fakturin/backend/internal/domain"
)

// handleListInvoices also answers the legacy ?aggregate=1 form with the
// monthly rollup.
func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("aggregate") != "" {
		a.handleMonthlyRevenue(w, r)
		return
	}
	result, err := a.service.SearchInvoices(r.Context(), r.URL.Query().Get("search"), pageFromQuery(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": result.Items, "total_count": result.TotalCount})
}

func (a *API) handleMonthlyRevenue(w http.ResponseWriter, r *http.Request) {
	rollup, err := a.service.MonthlyRevenue(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rollup})
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := a.service.GetInvoice(r.Context(), pathVar(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": inv})
}

func (a *API) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	var update domain.InvoiceUpdate
	if err := decodeJSON(r, &update); err != nil {
		a.writeServiceError(w, err)
		return
	}
	inv, err := a.service.UpdateInvoice(r.Context(), pathVar(r, "id"), update)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": inv})
}

func (a *API) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteInvoice(r.Context(), pathVar(r, "id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	summary, err := a.service.Dashboard(r.Context(), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
