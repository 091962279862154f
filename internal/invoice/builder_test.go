package invoice

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fakturin/backend/internal/domain"
	"fakturin/backend/internal/store"
)

func item(id string, price string) domain.LineItem {
	return domain.LineItem{ProductID: id, ProductName: "name-" + id, Price: decimal.RequireFromString(price)}
}

func TestSelectProductMergesDuplicates(t *testing.T) {
	var items []domain.LineItem
	items = SelectProduct(items, item("a", "10"))
	items = SelectProduct(items, item("b", "2.50"))
	before := items
	items = SelectProduct(items, item("a", "10"))

	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 1, items[1].Quantity)
	assert.Equal(t, 1, before[0].Quantity, "input slice must not change")
}

func TestSetQuantity(t *testing.T) {
	items := SelectProduct(nil, item("a", "10"))

	_, err := SetQuantity(items, "a", 0)
	assert.ErrorIs(t, err, store.ErrValidation)
	_, err = SetQuantity(items, "zzz", 3)
	assert.ErrorIs(t, err, store.ErrNotFound)

	next, err := SetQuantity(items, "a", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, next[0].Quantity)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestRemoveProductIgnoresAbsentID(t *testing.T) {
	items := SelectProduct(SelectProduct(nil, item("a", "1")), item("b", "2"))
	assert.Len(t, RemoveProduct(items, "missing"), 2)

	left := RemoveProduct(items, "a")
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].ProductID)
}

func TestTotalsFollowEveryEdit(t *testing.T) {
	var items []domain.LineItem
	steps := []func([]domain.LineItem) []domain.LineItem{
		func(in []domain.LineItem) []domain.LineItem { return SelectProduct(in, item("a", "19.99")) },
		func(in []domain.LineItem) []domain.LineItem { return SelectProduct(in, item("b", "0.01")) },
		func(in []domain.LineItem) []domain.LineItem { return SelectProduct(in, item("a", "19.99")) },
		func(in []domain.LineItem) []domain.LineItem {
			out, err := SetQuantity(in, "b", 100)
			require.NoError(t, err)
			return out
		},
		func(in []domain.LineItem) []domain.LineItem { return RemoveProduct(in, "a") },
		func(in []domain.LineItem) []domain.LineItem { return SelectProduct(in, item("c", "0")) },
	}

	for _, step := range steps {
		items = step(items)
		totals := ComputeTotals(items)

		quantity := 0
		amount := decimal.Zero
		for _, it := range items {
			quantity += it.Quantity
			amount = amount.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		assert.Equal(t, quantity, totals.Quantity)
		assert.True(t, amount.Equal(totals.Amount))
	}
	assert.True(t, ComputeTotals(items).Amount.Equal(decimal.NewFromInt(1)))
}

func TestValidateSubmission(t *testing.T) {
	customer := &domain.CustomerSnapshot{ID: "c1", Name: "Asha"}
	items := SelectProduct(nil, item("a", "1"))

	assert.ErrorIs(t, ValidateSubmission(nil, items), store.ErrValidation)
	assert.ErrorIs(t, ValidateSubmission(customer, nil), store.ErrValidation)
	bad := append([]domain.LineItem(nil), items...)
	bad[0].Quantity = 0
	assert.ErrorIs(t, ValidateSubmission(customer, bad), store.ErrValidation)
	assert.NoError(t, ValidateSubmission(customer, items))
}

func TestBuildSnapshotsAreDetached(t *testing.T) {
	product := domain.Product{ID: "p1", Name: "Tea", SellingPrice: decimal.NewFromInt(145), CostPrice: decimal.NewFromInt(110)}
	items := SelectProduct(nil, SnapshotProduct(product))
	customer := SnapshotCustomer(domain.Customer{ID: "c1", Name: " Asha ", Phone: "987"})
	issued := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	inv := Build("INV-4", customer, items, issued, issued.Add(time.Hour))
	items[0].Quantity = 50

	assert.Equal(t, "Asha", inv.Customer.Name)
	assert.Equal(t, 1, inv.Products[0].Quantity)
	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(145)))
	assert.NoError(t, store.ValidateInvoice(inv))
}

func TestApplyUpdate(t *testing.T) {
	issued := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	inv := Build("INV-1", domain.CustomerSnapshot{ID: "c1", Name: "A"}, SelectProduct(nil, item("a", "10")), issued, issued)

	number := "  INV-7 "
	newDate := domain.DateOf(time.Date(2024, time.February, 2, 18, 45, 0, 0, time.UTC))
	more := item("b", "3")
	more.Quantity = 2
	out := ApplyUpdate(inv, domain.InvoiceUpdate{
		InvoiceNumber: &number,
		Products:      []domain.LineItem{more},
		IssueDate:     &newDate,
	})

	assert.Equal(t, "INV-7", out.InvoiceNumber)
	assert.Equal(t, 2, out.TotalQuantity)
	assert.True(t, out.TotalAmount.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, time.Date(2024, time.February, 2, 0, 0, 0, 0, time.UTC), out.IssueDate)
	assert.Equal(t, "INV-1", inv.InvoiceNumber)
	assert.Equal(t, "a", inv.Products[0].ProductID)
}

func TestApplyUpdateKeepsClientCalendarDay(t *testing.T) {
	issued := time.Date(2024, time.April, 20, 0, 0, 0, 0, time.UTC)
	inv := Build("INV-1", domain.CustomerSnapshot{ID: "c1", Name: "A"}, SelectProduct(nil, item("a", "10")), issued, issued)

	cases := map[string]time.Time{
		`"2024-05-01"`:                time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		`"2024-05-01T00:00:00+05:30"`: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
		`"2024-04-30T23:30:00-08:00"`: time.Date(2024, time.April, 30, 0, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		var update domain.InvoiceUpdate
		require.NoError(t, json.Unmarshal([]byte(`{"issue_date":`+raw+`}`), &update), raw)
		out := ApplyUpdate(inv, update)
		assert.Equal(t, want, out.IssueDate, raw)
	}

	var update domain.InvoiceUpdate
	assert.Error(t, json.Unmarshal([]byte(`{"issue_date":"05/01/2024"}`), &update))
}
