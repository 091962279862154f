package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"fakturin/backend/internal/domain"
	"fakturin/backend/internal/service"
	"fakturin/backend/internal/store"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type API struct {
	service       *service.Service
	allowedOrigin string
	log           logrus.FieldLogger
	checks        map[string]HealthCheck
}

func New(svc *service.Service, allowedOrigin string, logger logrus.FieldLogger) *API {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
		log:           logger.WithField("component", "httpapi"),
		checks:        make(map[string]HealthCheck),
	}
}

// WithHealthCheck adds a named dependency check to /healthz.
func (a *API) WithHealthCheck(name string, check HealthCheck) *API {
	a.checks[name] = check
	return a
}

func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		a.writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		a.writeMethodNotAllowed(w)
	})

	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/customers", a.handleListCustomers).Methods(http.MethodGet)
	v1.HandleFunc("/customers", a.handleCreateCustomer).Methods(http.MethodPost)
	v1.HandleFunc("/customers/{id}", a.handleGetCustomer).Methods(http.MethodGet)
	v1.HandleFunc("/customers/{id}", a.handleUpdateCustomer).Methods(http.MethodPatch, http.MethodPut)
	v1.HandleFunc("/customers/{id}", a.handleDeleteCustomer).Methods(http.MethodDelete)

	v1.HandleFunc("/products", a.handleListProducts).Methods(http.MethodGet)
	v1.HandleFunc("/products", a.handleCreateProduct).Methods(http.MethodPost)
	v1.HandleFunc("/products/sku/{sku}", a.handleGetProductBySKU).Methods(http.MethodGet)
	v1.HandleFunc("/products/{id}", a.handleGetProduct).Methods(http.MethodGet)
	v1.HandleFunc("/products/{id}", a.handleUpdateProduct).Methods(http.MethodPatch, http.MethodPut)
	v1.HandleFunc("/products/{id}", a.handleDeleteProduct).Methods(http.MethodDelete)

	v1.HandleFunc("/invoices", a.handleListInvoices).Methods(http.MethodGet)
	v1.HandleFunc("/invoices/monthly-revenue", a.handleMonthlyRevenue).Methods(http.MethodGet)
	v1.HandleFunc("/invoices/{id}", a.handleGetInvoice).Methods(http.MethodGet)
	v1.HandleFunc("/invoices/{id}", a.handleUpdateInvoice).Methods(http.MethodPatch, http.MethodPut)
	v1.HandleFunc("/invoices/{id}", a.handleDeleteInvoice).Methods(http.MethodDelete)
	v1.HandleFunc("/dashboard", a.handleDashboard).Methods(http.MethodGet)

	v1.HandleFunc("/drafts", a.handleCreateDraft).Methods(http.MethodPost)
	v1.HandleFunc("/drafts/{id}", a.handleGetDraft).Methods(http.MethodGet)
	v1.HandleFunc("/drafts/{id}", a.handleDiscardDraft).Methods(http.MethodDelete)
	v1.HandleFunc("/drafts/{id}/customer", a.handleSetDraftCustomer).Methods(http.MethodPut)
	v1.HandleFunc("/drafts/{id}/items", a.handleAddDraftItem).Methods(http.MethodPost)
	v1.HandleFunc("/drafts/{id}/items/{productId}", a.handleSetDraftQuantity).Methods(http.MethodPatch)
	v1.HandleFunc("/drafts/{id}/items/{productId}", a.handleRemoveDraftItem).Methods(http.MethodDelete)
	v1.HandleFunc("/drafts/{id}/preview", a.handlePreviewDraft).Methods(http.MethodGet)
	v1.HandleFunc("/drafts/{id}/submit", a.handleSubmitDraft).Methods(http.MethodPost)

	return a.withMiddleware(r)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(a.checks))
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			a.log.WithError(err).WithField("check", name).Warn("health check failed")
			results[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "up"
	}

	writeJSON(w, status, map[string]any{
		"ok":     status == http.StatusOK,
		"at":     time.Now().UTC().Format(time.RFC3339),
		"checks": results,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(startedAt).String(),
		}).Info("request")
	})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	a.writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateSubmission):
		return http.StatusConflict
	case errors.Is(err, store.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func pageFromQuery(r *http.Request) domain.Page {
	q := r.URL.Query()
	return domain.Page{
		Number: parsePositiveLimit(q.Get("page"), 1, store.MaxPage),
		Limit:  parsePositiveLimit(q.Get("limit"), 10, 100),
	}
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return store.Invalid("body", err.Error())
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log only.
	msg := err.Error()
	switch {
	case status == http.StatusServiceUnavailable:
		a.log.WithError(err).WithField("status", status).Warn("storage unavailable")
		msg = "storage unavailable, retry later"
	case status >= 500:
		a.log.WithError(err).WithField("status", status).Error("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
