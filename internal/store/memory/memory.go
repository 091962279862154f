package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fakturin/backend/internal/domain"
	"fakturin/backend/internal/invoice"
	"fakturin/backend/internal/store"
	"fakturin/backend/internal/xid"
)

type counterKey struct {
	identifier string
	dateKey    string
}

type Store struct {
	mu        sync.RWMutex
	counters  map[counterKey]int64
	invoices  map[string]*domain.Invoice
	customers map[string]domain.Customer
	products  map[string]domain.Product
	// insertion order, used for recency ordering when created_at ties
	invoiceSeq map[string]int64
	nextSeq    int64
}

func New() *Store {
	return &Store{
		counters:   make(map[counterKey]int64),
		invoices:   make(map[string]*domain.Invoice),
		customers:  make(map[string]domain.Customer),
		products:   make(map[string]domain.Product),
		invoiceSeq: make(map[string]int64),
	}
}

// NewSeeded returns a store with a small demo catalog for local runs without
// a database.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, p := range []struct {
		name    string
		cost    string
		selling string
		sku     string
	}{
		{"Basmati Rice 5kg", "520", "640", "8901234500011"},
		{"Sunflower Oil 1L", "135", "165", "8901234500028"},
		{"Masala Tea 250g", "110", "145", "8901234500035"},
		{"Toor Dal 1kg", "128", "155", "8901234500042"},
		{"Detergent Powder 1kg", "92", "120", "8901234500059"},
	} {
		id := xid.New("")
		s.products[id] = domain.Product{
			ID:           id,
			Name:         p.name,
			CostPrice:    decimal.RequireFromString(p.cost),
			SellingPrice: decimal.RequireFromString(p.selling),
			SKUCode:      p.sku,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	for _, c := range []domain.Customer{
		{Name: "Walk-in Customer", Gender: domain.GenderOther},
		{Name: "Asha Verma", Phone: "9876543210", Gender: domain.GenderFemale},
	} {
		c.ID = xid.New("")
		c.CreatedAt = now
		c.UpdatedAt = now
		s.customers[c.ID] = c
	}
	return s
}

func (s *Store) PeekNextSequence(_ context.Context, identifier string, dateKey string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[counterKey{identifier, dateKey}] + 1, nil
}

func (s *Store) AllocateSequence(_ context.Context, identifier string, dateKey string) (int64, error) {
	if identifier == "" || dateKey == "" {
		return 0, store.Invalid("counter", "identifier and date key are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey{identifier, dateKey}
	s.counters[key]++
	return s.counters[key], nil
}

func (s *Store) CreateInvoice(_ context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	if err := store.ValidateInvoice(inv); err != nil {
		return nil, err
	}
	if inv.ID == "" {
		inv.ID = xid.New("")
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.invoices[inv.ID]; exists {
		return nil, store.Invalid("id", "already exists")
	}
	stored := cloneInvoice(inv)
	s.invoices[inv.ID] = &stored
	s.nextSeq++
	s.invoiceSeq[inv.ID] = s.nextSeq

	created := cloneInvoice(stored)
	return &created, nil
}

func (s *Store) FindInvoiceByID(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneInvoice(*inv)
	return &found, nil
}

func (s *Store) UpdateInvoice(_ context.Context, id string, update domain.InvoiceUpdate) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	updated := invoice.ApplyUpdate(*existing, update)
	if err := store.ValidateInvoice(updated); err != nil {
		return nil, err
	}
	s.invoices[id] = &updated

	result := cloneInvoice(updated)
	return &result, nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.invoices, id)
	delete(s.invoiceSeq, id)
	return nil
}

func (s *Store) SearchInvoices(_ context.Context, filter string, page domain.Page) (domain.InvoiceSearchResult, error) {
	page = store.NormalizePage(page)
	needle := strings.ToLower(strings.TrimSpace(filter))

	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*domain.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if needle == "" ||
			strings.Contains(strings.ToLower(inv.InvoiceNumber), needle) ||
			strings.Contains(strings.ToLower(inv.Customer.Name), needle) ||
			strings.Contains(strings.ToLower(inv.Customer.Phone), needle) {
			matched = append(matched, inv)
		}
	}
	s.sortNewestFirst(matched)

	result := domain.InvoiceSearchResult{TotalCount: len(matched), Items: make([]domain.Invoice, 0, page.Limit)}
	for i := page.Offset(); i < len(matched) && len(result.Items) < page.Limit; i++ {
		result.Items = append(result.Items, cloneInvoice(*matched[i]))
	}
	return result, nil
}

func (s *Store) MonthlyRevenue(_ context.Context) ([]domain.MonthRevenue, error) {
	var totals [12]decimal.Decimal
	s.mu.RLock()
	for _, inv := range s.invoices {
		month := inv.IssueDate.Month()
		totals[month-1] = totals[month-1].Add(inv.TotalAmount)
	}
	s.mu.RUnlock()

	rollup := make([]domain.MonthRevenue, 0, 12)
	for i, label := range domain.MonthLabels {
		rollup = append(rollup, domain.MonthRevenue{Month: label, TotalAmount: totals[i]})
	}
	return rollup, nil
}

func (s *Store) DashboardSummary(_ context.Context, start time.Time, endInclusive time.Time) (domain.DashboardSummary, error) {
	from := dateOnly(start)
	to := dateOnly(endInclusive)
	summary := domain.DashboardSummary{
		TotalRevenue:     decimal.Zero,
		AverageItemPrice: decimal.Zero,
		RecentSales:      make([]domain.Invoice, 0, 5),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	window := make([]*domain.Invoice, 0, 16)
	customers := make(map[string]struct{})
	priceSum := decimal.Zero
	for _, inv := range s.invoices {
		issued := dateOnly(inv.IssueDate)
		if issued.Before(from) || issued.After(to) {
			continue
		}
		window = append(window, inv)
		summary.TotalRevenue = summary.TotalRevenue.Add(inv.TotalAmount)
		summary.TotalSaleCount++
		summary.TotalSoldItemUnits += int64(inv.TotalQuantity)
		summary.TotalLineItems += int64(len(inv.Products))
		customers[inv.Customer.ID] = struct{}{}
		for _, item := range inv.Products {
			priceSum = priceSum.Add(item.Price)
		}
	}
	summary.DistinctCustomers = int64(len(customers))
	if summary.TotalLineItems > 0 {
		summary.AverageItemPrice = priceSum.Div(decimal.NewFromInt(summary.TotalLineItems))
	}

	s.sortNewestFirst(window)
	for i := 0; i < len(window) && i < 5; i++ {
		summary.RecentSales = append(summary.RecentSales, cloneInvoice(*window[i]))
	}
	return summary, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.Invalid("name", "is required")
	}
	if customer.ID == "" {
		customer.ID = xid.New("")
	}
	now := time.Now().UTC()
	customer.CreatedAt = now
	customer.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.Invalid("id", "already exists")
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) FindCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.Invalid("name", "is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.customers[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = time.Now().UTC()
	s.customers[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) SearchCustomers(_ context.Context, filter string, page domain.Page) (domain.CustomerSearchResult, error) {
	page = store.NormalizePage(page)
	needle := strings.ToLower(strings.TrimSpace(filter))

	s.mu.RLock()
	matched := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if needle == "" || strings.Contains(strings.ToLower(c.Name), needle) || strings.Contains(strings.ToLower(c.Phone), needle) {
			matched = append(matched, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	return domain.CustomerSearchResult{Items: paginate(matched, page), TotalCount: len(matched)}, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if existing.SKUCode == product.SKUCode {
			return nil, store.Invalid("sku_code", "already exists")
		}
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) FindProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) FindProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, product := range s.products {
		if product.SKUCode == sku {
			found := product
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range s.products {
		if id != product.ID && other.SKUCode == product.SKUCode {
			return nil, store.Invalid("sku_code", "already exists")
		}
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) SearchProducts(_ context.Context, filter string, page domain.Page) (domain.ProductSearchResult, error) {
	page = store.NormalizePage(page)
	needle := strings.ToLower(strings.TrimSpace(filter))

	s.mu.RLock()
	matched := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if needle == "" || strings.Contains(strings.ToLower(p.Name), needle) {
			matched = append(matched, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	return domain.ProductSearchResult{Items: paginate(matched, page), TotalCount: len(matched)}, nil
}

// sortNewestFirst orders by created_at, then insertion order. Caller holds mu.
func (s *Store) sortNewestFirst(invoices []*domain.Invoice) {
	sort.Slice(invoices, func(i, j int) bool {
		a, b := invoices[i], invoices[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return s.invoiceSeq[a.ID] > s.invoiceSeq[b.ID]
	})
}

func cloneInvoice(inv domain.Invoice) domain.Invoice {
	inv.Products = append([]domain.LineItem(nil), inv.Products...)
	return inv
}

func paginate[T any](items []T, page domain.Page) []T {
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return append([]T(nil), items[start:end]...)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
