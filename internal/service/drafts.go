package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fakturin/backend/internal/domain"
	"fakturin/backend/internal/invoice"
	"fakturin/backend/internal/store"
	"fakturin/backend/internal/xid"
)

// ErrDuplicateSubmission rejects a submit while the draft is already being
// submitted or has been committed. No storage call is made.
var ErrDuplicateSubmission = errors.New("duplicate submission")

// draftBook holds in-progress invoices. mu guards the map and every entry and
// is never held across a storage call.
type draftBook struct {
	mu     sync.Mutex
	ttl    time.Duration
	drafts map[string]*domain.Draft
}

func newDraftBook(ttl time.Duration) *draftBook {
	return &draftBook{ttl: ttl, drafts: make(map[string]*domain.Draft)}
}

// lookup returns the live draft for id. Caller holds mu.
func (b *draftBook) lookup(id string, now time.Time) (*domain.Draft, error) {
	draft, ok := b.drafts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if b.expired(draft, now) {
		delete(b.drafts, id)
		return nil, store.ErrNotFound
	}
	return draft, nil
}

// sweep evicts idle drafts. Caller holds mu.
func (b *draftBook) sweep(now time.Time) int {
	evicted := 0
	for id, draft := range b.drafts {
		if b.expired(draft, now) {
			delete(b.drafts, id)
			evicted++
		}
	}
	return evicted
}

func (b *draftBook) expired(draft *domain.Draft, now time.Time) bool {
	if draft.Status == domain.DraftSubmitting {
		return false
	}
	return now.Sub(draft.UpdatedAt) > b.ttl
}

func (s *Service) NewDraft(_ context.Context) domain.Draft {
	now := s.now().UTC()
	draft := &domain.Draft{
		ID:        xid.New("draft"),
		Status:    domain.DraftIdle,
		Items:     []domain.LineItem{},
		Totals:    invoice.ComputeTotals(nil),
		UpdatedAt: now,
	}

	s.drafts.mu.Lock()
	evicted := s.drafts.sweep(now)
	s.drafts.drafts[draft.ID] = draft
	snapshot := copyDraft(draft)
	s.drafts.mu.Unlock()

	if evicted > 0 {
		s.log.WithField("evicted", evicted).Debug("expired drafts evicted")
	}
	return snapshot
}

func (s *Service) Draft(_ context.Context, id string) (domain.Draft, error) {
	s.drafts.mu.Lock()
	defer s.drafts.mu.Unlock()
	draft, err := s.drafts.lookup(id, s.now().UTC())
	if err != nil {
		return domain.Draft{}, err
	}
	return copyDraft(draft), nil
}

func (s *Service) DiscardDraft(_ context.Context, id string) error {
	s.drafts.mu.Lock()
	defer s.drafts.mu.Unlock()
	draft, err := s.drafts.lookup(id, s.now().UTC())
	if err != nil {
		return err
	}
	if draft.Status == domain.DraftSubmitting {
		return store.Invalid("status", "submission in progress")
	}
	delete(s.drafts.drafts, id)
	return nil
}

func (s *Service) SetDraftCustomer(ctx context.Context, id string, customerID string) (domain.Draft, error) {
	if _, err := s.editableDraft(id); err != nil {
		return domain.Draft{}, err
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Draft{}, store.Invalid("customer_id", "is required")
	}

	storageCtx, cancel := s.storageContext(ctx)
	customer, err := s.repo.FindCustomerByID(storageCtx, customerID)
	cancel()
	if err != nil {
		return domain.Draft{}, err
	}
	snapshot := invoice.SnapshotCustomer(*customer)

	return s.editDraft(id, func(draft *domain.Draft) error {
		draft.Customer = &snapshot
		return nil
	})
}

func (s *Service) AddDraftProduct(ctx context.Context, id string, productID string) (domain.Draft, error) {
	if _, err := s.editableDraft(id); err != nil {
		return domain.Draft{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Draft{}, store.Invalid("product_id", "is required")
	}

	storageCtx, cancel := s.storageContext(ctx)
	product, err := s.repo.FindProductByID(storageCtx, productID)
	cancel()
	if err != nil {
		return domain.Draft{}, err
	}
	return s.addProduct(id, *product)
}

// AddDraftProductBySKU adds the product behind a scanned barcode.
func (s *Service) AddDraftProductBySKU(ctx context.Context, id string, sku string) (domain.Draft, error) {
	if _, err := s.editableDraft(id); err != nil {
		return domain.Draft{}, err
	}
	product, err := s.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Draft{}, err
	}
	return s.addProduct(id, product)
}

func (s *Service) SetDraftQuantity(_ context.Context, id string, productID string, quantity int) (domain.Draft, error) {
	return s.editDraft(id, func(draft *domain.Draft) error {
		items, err := invoice.SetQuantity(draft.Items, productID, quantity)
		if err != nil {
			return err
		}
		draft.Items = items
		return nil
	})
}

func (s *Service) RemoveDraftProduct(_ context.Context, id string, productID string) (domain.Draft, error) {
	return s.editDraft(id, func(draft *domain.Draft) error {
		draft.Items = invoice.RemoveProduct(draft.Items, productID)
		return nil
	})
}

// PreviewDraftNumber reports the number the next submission would likely
// receive. It reserves nothing; a concurrent submission may take it first.
func (s *Service) PreviewDraftNumber(ctx context.Context, id string) (domain.PreviewResponse, error) {
	if _, err := s.editableDraft(id); err != nil {
		return domain.PreviewResponse{}, err
	}

	storageCtx, cancel := s.storageContext(ctx)
	number, err := s.allocator.Preview(storageCtx)
	cancel()
	if err != nil {
		return domain.PreviewResponse{}, err
	}

	_, err = s.editDraft(id, func(draft *domain.Draft) error {
		draft.Status = domain.DraftPreviewing
		draft.PreviewNumber = number
		return nil
	})
	if err != nil {
		return domain.PreviewResponse{}, err
	}
	return domain.PreviewResponse{InvoiceNumber: number, Advisory: true}, nil
}

// SubmitDraft allocates the authoritative number and persists the invoice.
// On failure the draft keeps its customer and items so the caller can retry;
// a number consumed by a failed attempt is not given back.
func (s *Service) SubmitDraft(ctx context.Context, id string) (domain.Invoice, error) {
	s.drafts.mu.Lock()
	draft, err := s.drafts.lookup(id, s.now().UTC())
	if err != nil {
		s.drafts.mu.Unlock()
		return domain.Invoice{}, err
	}
	if draft.Status == domain.DraftSubmitting || draft.Status == domain.DraftCommitted {
		s.drafts.mu.Unlock()
		return domain.Invoice{}, ErrDuplicateSubmission
	}
	if err := invoice.ValidateSubmission(draft.Customer, draft.Items); err != nil {
		s.drafts.mu.Unlock()
		return domain.Invoice{}, err
	}
	customer := *draft.Customer
	items := append([]domain.LineItem(nil), draft.Items...)
	draft.Status = domain.DraftSubmitting
	draft.LastError = ""
	draft.UpdatedAt = s.now().UTC()
	s.drafts.mu.Unlock()

	logger := s.log.WithFields(logrus.Fields{"draft_id": id, "customer_id": customer.ID})

	storageCtx, cancel := s.storageContext(ctx)
	defer cancel()

	allocation, err := s.allocator.Allocate(storageCtx)
	if err != nil {
		logger.WithError(err).Warn("invoice number allocation failed")
		return domain.Invoice{}, s.failDraft(id, err)
	}
	logger = logger.WithField("invoice_number", allocation.Number)

	built := invoice.Build(allocation.Number, customer, items, allocation.IssueDate, allocation.At)
	created, err := s.repo.CreateInvoice(storageCtx, built)
	if err != nil {
		logger.WithError(err).Warn("invoice create failed; sequence not returned")
		return domain.Invoice{}, s.failDraft(id, err)
	}

	s.drafts.mu.Lock()
	if draft, ok := s.drafts.drafts[id]; ok {
		draft.Status = domain.DraftCommitted
		draft.Customer = nil
		draft.Items = []domain.LineItem{}
		draft.Totals = invoice.ComputeTotals(nil)
		draft.PreviewNumber = ""
		draft.InvoiceID = created.ID
		draft.InvoiceNumber = created.InvoiceNumber
		draft.UpdatedAt = s.now().UTC()
	}
	s.drafts.mu.Unlock()

	s.invalidateDashboard(ctx)
	logger.WithField("invoice_id", created.ID).Info("invoice committed")
	return *created, nil
}

func (s *Service) failDraft(id string, cause error) error {
	s.drafts.mu.Lock()
	defer s.drafts.mu.Unlock()
	if draft, ok := s.drafts.drafts[id]; ok {
		draft.Status = domain.DraftFailed
		draft.LastError = cause.Error()
		draft.UpdatedAt = s.now().UTC()
	}
	return cause
}

func (s *Service) addProduct(id string, product domain.Product) (domain.Draft, error) {
	item := invoice.SnapshotProduct(product)
	return s.editDraft(id, func(draft *domain.Draft) error {
		draft.Items = invoice.SelectProduct(draft.Items, item)
		return nil
	})
}

// editableDraft checks, without holding the lock afterwards, that id names a
// draft that still accepts edits. Used before storage lookups so a doomed
// edit fails fast; editDraft checks again under the lock.
func (s *Service) editableDraft(id string) (domain.Draft, error) {
	s.drafts.mu.Lock()
	defer s.drafts.mu.Unlock()
	draft, err := s.drafts.lookup(id, s.now().UTC())
	if err != nil {
		return domain.Draft{}, err
	}
	if err := checkEditable(draft); err != nil {
		return domain.Draft{}, err
	}
	return copyDraft(draft), nil
}

// editDraft applies mutate under the lock and recomputes totals. A failed
// or previewed draft goes back to idle on any edit except a preview.
func (s *Service) editDraft(id string, mutate func(draft *domain.Draft) error) (domain.Draft, error) {
	s.drafts.mu.Lock()
	defer s.drafts.mu.Unlock()
	draft, err := s.drafts.lookup(id, s.now().UTC())
	if err != nil {
		return domain.Draft{}, err
	}
	if err := checkEditable(draft); err != nil {
		return domain.Draft{}, err
	}

	working := copyDraft(draft)
	working.Status = domain.DraftIdle
	if err := mutate(&working); err != nil {
		return domain.Draft{}, err
	}
	working.Totals = invoice.ComputeTotals(working.Items)
	working.UpdatedAt = s.now().UTC()
	*draft = working
	return copyDraft(draft), nil
}

func checkEditable(draft *domain.Draft) error {
	switch draft.Status {
	case domain.DraftSubmitting:
		return store.Invalid("status", "submission in progress")
	case domain.DraftCommitted:
		return store.Invalid("status", "draft already committed")
	}
	return nil
}

func copyDraft(draft *domain.Draft) domain.Draft {
	out := *draft
	out.Items = append([]domain.LineItem{}, draft.Items...)
	if draft.Customer != nil {
		customer := *draft.Customer
		out.Customer = &customer
	}
	return out
}
