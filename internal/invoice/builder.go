// Package invoice assembles draft invoices. Every function returns a fresh
// slice and leaves its input untouched, so callers may hold on to earlier
// states.
package invoice

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fakturin/backend/internal/domain"
	"fakturin/backend/internal/store"
)

// SelectProduct adds one unit of item. A product already on the list gets its
// quantity bumped instead of a second line.
func SelectProduct(items []domain.LineItem, item domain.LineItem) []domain.LineItem {
	next := make([]domain.LineItem, 0, len(items)+1)
	found := false
	for _, existing := range items {
		if existing.ProductID == item.ProductID {
			existing.Quantity++
			found = true
		}
		next = append(next, existing)
	}
	if !found {
		item.Quantity = 1
		next = append(next, item)
	}
	return next
}

func SetQuantity(items []domain.LineItem, productID string, quantity int) ([]domain.LineItem, error) {
	if quantity < 1 {
		return nil, store.Invalid("quantity", "must be at least 1")
	}
	next := make([]domain.LineItem, 0, len(items))
	found := false
	for _, existing := range items {
		if existing.ProductID == productID {
			existing.Quantity = quantity
			found = true
		}
		next = append(next, existing)
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return next, nil
}

// RemoveProduct drops the line for productID. Absent ids are a no-op.
func RemoveProduct(items []domain.LineItem, productID string) []domain.LineItem {
	next := make([]domain.LineItem, 0, len(items))
	for _, existing := range items {
		if existing.ProductID == productID {
			continue
		}
		next = append(next, existing)
	}
	return next
}

func ComputeTotals(items []domain.LineItem) domain.Totals {
	totals := domain.Totals{Amount: decimal.Zero}
	for _, item := range items {
		totals.Amount = totals.Amount.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		totals.Quantity += item.Quantity
	}
	return totals
}

// ValidateSubmission is the gate before a draft may be submitted: a customer,
// at least one line, and no quantity below one.
func ValidateSubmission(customer *domain.CustomerSnapshot, items []domain.LineItem) error {
	if customer == nil || customer.ID == "" {
		return store.Invalid("customer", "must be selected")
	}
	if len(items) == 0 {
		return store.Invalid("products", "must contain at least one item")
	}
	for _, item := range items {
		if item.Quantity < 1 {
			return store.Invalid("quantity", "must be at least 1")
		}
	}
	return nil
}

func SnapshotCustomer(customer domain.Customer) domain.CustomerSnapshot {
	return domain.CustomerSnapshot{
		ID:    customer.ID,
		Name:  strings.TrimSpace(customer.Name),
		Phone: strings.TrimSpace(customer.Phone),
	}
}

// SnapshotProduct copies the catalog name and selling price into a line item
// with quantity zero; SelectProduct sets the quantity.
func SnapshotProduct(product domain.Product) domain.LineItem {
	return domain.LineItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Price:       product.SellingPrice,
	}
}

// Build assembles the invoice document that gets persisted.
func Build(number string, customer domain.CustomerSnapshot, items []domain.LineItem, issueDate time.Time, createdAt time.Time) domain.Invoice {
	totals := ComputeTotals(items)
	products := make([]domain.LineItem, len(items))
	copy(products, items)
	return domain.Invoice{
		InvoiceNumber: number,
		Customer:      customer,
		Products:      products,
		TotalAmount:   totals.Amount,
		TotalQuantity: totals.Quantity,
		IssueDate:     issueDate,
		CreatedAt:     createdAt,
	}
}

// ApplyUpdate returns inv with the administrative edit applied. Totals are
// recomputed from the new line items; they are never taken from the caller.
func ApplyUpdate(inv domain.Invoice, update domain.InvoiceUpdate) domain.Invoice {
	inv.Products = append([]domain.LineItem(nil), inv.Products...)
	if update.InvoiceNumber != nil {
		inv.InvoiceNumber = strings.TrimSpace(*update.InvoiceNumber)
	}
	if update.Customer != nil {
		inv.Customer = *update.Customer
	}
	if update.Products != nil {
		inv.Products = append([]domain.LineItem(nil), update.Products...)
		totals := ComputeTotals(inv.Products)
		inv.TotalAmount = totals.Amount
		inv.TotalQuantity = totals.Quantity
	}
	if update.IssueDate != nil {
		inv.IssueDate = update.IssueDate.Time
	}
	return inv
}
