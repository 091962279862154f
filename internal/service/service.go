package service

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"fakturin/backend/internal/cache"
	"fakturin/backend/internal/domain"
	"fakturin/backend/internal/numbering"
	"fakturin/backend/internal/store"
)

const dateLayout = "2006-01-02"

type Settings struct {
	Cache          cache.DashboardCache
	CacheTTL       time.Duration
	DraftTTL       time.Duration
	StorageTimeout time.Duration
	Logger         logrus.FieldLogger
}

type Service struct {
	repo      store.Repository
	allocator *numbering.Allocator
	cache     cache.DashboardCache
	cacheTTL  time.Duration
	cacheGen  atomic.Uint64
	timeout   time.Duration
	log       logrus.FieldLogger
	drafts    *draftBook
	now       func() time.Time
}

func New(repo store.Repository, allocator *numbering.Allocator, settings Settings) *Service {
	if settings.Cache == nil {
		settings.Cache = cache.NoopDashboardCache{}
	}
	if settings.DraftTTL <= 0 {
		settings.DraftTTL = 2 * time.Hour
	}
	if settings.StorageTimeout <= 0 {
		settings.StorageTimeout = 5 * time.Second
	}
	if settings.Logger == nil {
		settings.Logger = logrus.StandardLogger()
	}

	return &Service{
		repo:      repo,
		allocator: allocator,
		cache:     settings.Cache,
		cacheTTL:  settings.CacheTTL,
		timeout:   settings.StorageTimeout,
		log:       settings.Logger.WithField("component", "service"),
		drafts:    newDraftBook(settings.DraftTTL),
		now:       time.Now,
	}
}

// WithClock replaces the time source used for draft expiry and default
// dashboard windows.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	customer := domain.Customer{
		Name:   strings.TrimSpace(req.Name),
		Phone:  strings.TrimSpace(req.Phone),
		Gender: strings.TrimSpace(req.Gender),
	}
	if err := validateCustomer(customer); err != nil {
		return domain.Customer{}, err
	}

	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	customer, err := s.repo.FindCustomerByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()

	existing, err := s.repo.FindCustomerByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Gender != nil {
		updated.Gender = strings.TrimSpace(*req.Gender)
	}
	if err := validateCustomer(updated); err != nil {
		return domain.Customer{}, err
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	return s.repo.DeleteCustomer(ctx, strings.TrimSpace(id))
}

func (s *Service) SearchCustomers(ctx context.Context, filter string, page domain.Page) (domain.CustomerSearchResult, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	return s.repo.SearchCustomers(ctx, filter, store.NormalizePage(page))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	product := domain.Product{
		Name:         strings.TrimSpace(req.Name),
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		SKUCode:      normalizeSKU(req.SKUCode),
	}
	if err := store.ValidateProduct(product); err != nil {
		return domain.Product{}, err
	}

	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	product, err := s.repo.FindProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// GetProductBySKU resolves a scanned barcode.
func (s *Service) GetProductBySKU(ctx context.Context, sku string) (domain.Product, error) {
	sku = normalizeSKU(sku)
	if sku == "" {
		return domain.Product{}, store.Invalid("sku_code", "is required")
	}
	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	product, err := s.repo.FindProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()

	existing, err := s.repo.FindProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.CostPrice != nil {
		updated.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		updated.SellingPrice = *req.SellingPrice
	}
	if req.SKUCode != nil {
		updated.SKUCode = normalizeSKU(*req.SKUCode)
	}
	if err := store.ValidateProduct(updated); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	return s.repo.DeleteProduct(ctx, strings.TrimSpace(id))
}

func (s *Service) SearchProducts(ctx context.Context, filter string, page domain.Page) (domain.ProductSearchResult, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	return s.repo.SearchProducts(ctx, filter, store.NormalizePage(page))
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	inv, err := s.repo.FindInvoiceByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Invoice{}, err
	}
	return *inv, nil
}

func (s *Service) SearchInvoices(ctx context.Context, filter string, page domain.Page) (domain.InvoiceSearchResult, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	return s.repo.SearchInvoices(ctx, filter, store.NormalizePage(page))
}

// UpdateInvoice applies an administrative edit. Totals follow the line items
// and cannot be set directly.
func (s *Service) UpdateInvoice(ctx context.Context, id string, update domain.InvoiceUpdate) (domain.Invoice, error) {
	if update.IsEmpty() {
		return domain.Invoice{}, store.Invalid("", "no fields to update")
	}
	if update.InvoiceNumber != nil && strings.TrimSpace(*update.InvoiceNumber) == "" {
		return domain.Invoice{}, store.Invalid("invoice_number", "must not be empty")
	}
	if update.Products != nil && len(update.Products) == 0 {
		return domain.Invoice{}, store.Invalid("products", "must contain at least one item")
	}

	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	updated, err := s.repo.UpdateInvoice(ctx, strings.TrimSpace(id), update)
	if err != nil {
		return domain.Invoice{}, err
	}
	s.invalidateDashboard(ctx)
	return *updated, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id string) error {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	if err := s.repo.DeleteInvoice(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.invalidateDashboard(ctx)
	return nil
}

func (s *Service) MonthlyRevenue(ctx context.Context) ([]domain.MonthRevenue, error) {
	ctx, cancel := s.storageContext(ctx)
	defer cancel()
	return s.repo.MonthlyRevenue(ctx)
}

// Dashboard summarizes invoices issued between startDate and endDate, both
// inclusive and formatted YYYY-MM-DD. Missing bounds default to the first of
// the current business month and today.
func (s *Service) Dashboard(ctx context.Context, startDate string, endDate string) (domain.DashboardSummary, error) {
	today := numbering.LocalDate(s.now(), s.allocator.Zone())
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := today

	var err error
	if strings.TrimSpace(startDate) != "" {
		if start, err = time.Parse(dateLayout, strings.TrimSpace(startDate)); err != nil {
			return domain.DashboardSummary{}, store.Invalid("startDate", "must be formatted YYYY-MM-DD")
		}
	}
	if strings.TrimSpace(endDate) != "" {
		if end, err = time.Parse(dateLayout, strings.TrimSpace(endDate)); err != nil {
			return domain.DashboardSummary{}, store.Invalid("endDate", "must be formatted YYYY-MM-DD")
		}
	}
	if start.After(end) {
		return domain.DashboardSummary{}, store.Invalid("startDate", "must not be after endDate")
	}

	key := cache.DashboardKey(start.Format(dateLayout), end.Format(dateLayout))
	if s.cacheTTL > 0 {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("dashboard cache read failed")
		} else if ok {
			return *cached, nil
		}
	}

	// An invalidation that lands while the summary is computed must not be
	// undone by writing the older summary back.
	generation := s.cacheGen.Load()
	storageCtx, cancel := s.storageContext(ctx)
	defer cancel()
	summary, err := s.repo.DashboardSummary(storageCtx, start, end)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	summary.StartDate = start.Format(dateLayout)
	summary.EndDate = end.Format(dateLayout)

	if s.cacheTTL > 0 && s.cacheGen.Load() == generation {
		if err := s.cache.Set(ctx, key, &summary, s.cacheTTL); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("dashboard cache write failed")
		}
	}
	return summary, nil
}

func (s *Service) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	s.cacheGen.Add(1)
	if s.cacheTTL <= 0 {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.WithError(err).Warn("dashboard cache invalidation failed")
	}
}

func validateCustomer(customer domain.Customer) error {
	if customer.Name == "" {
		return store.Invalid("name", "is required")
	}
	switch customer.Gender {
	case "", domain.GenderMale, domain.GenderFemale, domain.GenderOther:
		return nil
	}
	return store.Invalid("gender", "must be Male, Female or Other")
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
