package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fakturin/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError names the offending field. It unwraps to ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func Invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// CounterStore persists (identifier, dateKey) -> sequence.
type CounterStore interface {
	// PeekNextSequence reports what the next allocation would return. It never writes.
	PeekNextSequence(ctx context.Context, identifier string, dateKey string) (int64, error)
	// AllocateSequence atomically increments and returns the sequence, creating
	// the row at 1 when absent.
	AllocateSequence(ctx context.Context, identifier string, dateKey string) (int64, error)
}

type InvoiceRepository interface {
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	FindInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error)
	UpdateInvoice(ctx context.Context, id string, update domain.InvoiceUpdate) (*domain.Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error
	SearchInvoices(ctx context.Context, filter string, page domain.Page) (domain.InvoiceSearchResult, error)
	MonthlyRevenue(ctx context.Context) ([]domain.MonthRevenue, error)
	DashboardSummary(ctx context.Context, start time.Time, endInclusive time.Time) (domain.DashboardSummary, error)
}

type CustomerRepository interface {
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	SearchCustomers(ctx context.Context, filter string, page domain.Page) (domain.CustomerSearchResult, error)
}

type ProductRepository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	FindProductByID(ctx context.Context, id string) (*domain.Product, error)
	FindProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	SearchProducts(ctx context.Context, filter string, page domain.Page) (domain.ProductSearchResult, error)
}

type Repository interface {
	CounterStore
	InvoiceRepository
	CustomerRepository
	ProductRepository
}

// ValidateInvoice checks the fields every persisted invoice must carry.
func ValidateInvoice(invoice domain.Invoice) error {
	switch {
	case invoice.InvoiceNumber == "":
		return Invalid("invoice_number", "is required")
	case invoice.Customer.ID == "" || invoice.Customer.Name == "":
		return Invalid("customer", "is required")
	case len(invoice.Products) == 0:
		return Invalid("products", "must contain at least one item")
	case invoice.IssueDate.IsZero():
		return Invalid("issue_date", "is required")
	}
	quantity := 0
	amount := decimal.Zero
	for _, item := range invoice.Products {
		if item.ProductID == "" || item.ProductName == "" {
			return Invalid("products", "item is missing product reference")
		}
		if item.Quantity < 1 {
			return Invalid("quantity", "must be at least 1")
		}
		if item.Price.IsNegative() {
			return Invalid("price", "must not be negative")
		}
		quantity += item.Quantity
		amount = amount.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if invoice.TotalQuantity != quantity {
		return Invalid("total_quantity", "does not match line items")
	}
	if !invoice.TotalAmount.Equal(amount) {
		return Invalid("total_amount", "does not match line items")
	}
	return nil
}

func ValidateProduct(product domain.Product) error {
	switch {
	case strings.TrimSpace(product.Name) == "":
		return Invalid("name", "is required")
	case strings.TrimSpace(product.SKUCode) == "":
		return Invalid("sku_code", "is required")
	case product.CostPrice.IsNegative():
		return Invalid("cost_price", "must not be negative")
	case product.SellingPrice.IsNegative():
		return Invalid("selling_price", "must not be negative")
	}
	return nil
}

// MaxPage bounds the page number so the row offset stays far from overflow.
const MaxPage = 1_000_000

// NormalizePage applies list defaults: page 1, limit 10, at most 100 rows,
// page at most MaxPage.
func NormalizePage(page domain.Page) domain.Page {
	if page.Number < 1 {
		page.Number = 1
	}
	if page.Number > MaxPage {
		page.Number = MaxPage
	}
	if page.Limit < 1 {
		page.Limit = 10
	}
	if page.Limit > 100 {
		page.Limit = 100
	}
	return page
}

// Unavailable marks err as a storage availability failure.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
