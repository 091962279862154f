package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	Gender    string    `json:"gender" db:"gender"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CustomerCreateRequest struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Gender string `json:"gender"`
}

type CustomerUpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Gender *string `json:"gender,omitempty"`
}

type Product struct {
	ID           string          `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	CostPrice    decimal.Decimal `json:"cost_price" db:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price" db:"selling_price"`
	SKUCode      string          `json:"sku_code" db:"sku_code"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

type ProductCreateRequest struct {
	Name         string          `json:"name"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	SKUCode      string          `json:"sku_code"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	SKUCode      *string          `json:"sku_code,omitempty"`
}

// CustomerSnapshot is the copy of a customer embedded in an invoice at
// creation time. It does not follow later edits of the customer record.
type CustomerSnapshot struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// LineItem is one product/quantity/price tuple. Name and price are copied
// from the catalog when the product is picked.
type LineItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type Totals struct {
	Amount   decimal.Decimal `json:"total_amount"`
	Quantity int             `json:"total_quantity"`
}

type Invoice struct {
	ID            string           `json:"id"`
	InvoiceNumber string           `json:"invoice_number"`
	Customer      CustomerSnapshot `json:"customer"`
	Products      []LineItem       `json:"products"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	TotalQuantity int              `json:"total_quantity"`
	IssueDate     time.Time        `json:"issue_date"`
	CreatedAt     time.Time        `json:"created_at"`
}

// InvoiceUpdate carries administrative edits. Totals are not editable; they
// are re-derived whenever Products changes.
type InvoiceUpdate struct {
	InvoiceNumber *string           `json:"invoice_number,omitempty"`
	Customer      *CustomerSnapshot `json:"customer,omitempty"`
	Products      []LineItem        `json:"products,omitempty"`
	IssueDate     *Date             `json:"issue_date,omitempty"`
}

func (u InvoiceUpdate) IsEmpty() bool {
	return u.InvoiceNumber == nil && u.Customer == nil && u.Products == nil && u.IssueDate == nil
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date held as midnight UTC. It decodes from YYYY-MM-DD or
// from an RFC 3339 timestamp, in which case the day is read in the
// timestamp's own offset.
type Date struct {
	time.Time
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func ParseDate(raw string) (Date, error) {
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return Date{}, fmt.Errorf("date %q must be formatted YYYY-MM-DD", raw)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type Page struct {
	Number int `json:"page"`
	Limit  int `json:"limit"`
}

func (p Page) Offset() int {
	if p.Number < 1 || p.Limit < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

type InvoiceSearchResult struct {
	Items      []Invoice `json:"items"`
	TotalCount int       `json:"total_count"`
}

type CustomerSearchResult struct {
	Items      []Customer `json:"items"`
	TotalCount int        `json:"total_count"`
}

type ProductSearchResult struct {
	Items      []Product `json:"items"`
	TotalCount int       `json:"total_count"`
}

type MonthRevenue struct {
	Month       string          `json:"name"`
	TotalAmount decimal.Decimal `json:"total"`
}

type DashboardSummary struct {
	StartDate          string          `json:"start_date"`
	EndDate            string          `json:"end_date"`
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	TotalSaleCount     int64           `json:"total_sales"`
	DistinctCustomers  int64           `json:"total_customers"`
	TotalSoldItemUnits int64           `json:"total_sold_items"`
	TotalLineItems     int64           `json:"total_items"`
	AverageItemPrice   decimal.Decimal `json:"average_item_price"`
	RecentSales        []Invoice       `json:"recent_sales"`
}

type DraftStatus string

const (
	DraftIdle       DraftStatus = "idle"
	DraftPreviewing DraftStatus = "previewing"
	DraftSubmitting DraftStatus = "submitting"
	DraftCommitted  DraftStatus = "committed"
	DraftFailed     DraftStatus = "failed"
)

type Draft struct {
	ID            string            `json:"id"`
	Status        DraftStatus       `json:"status"`
	Customer      *CustomerSnapshot `json:"customer,omitempty"`
	Items         []LineItem        `json:"items"`
	Totals        Totals            `json:"totals"`
	PreviewNumber string            `json:"preview_number,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	InvoiceID     string            `json:"invoice_id,omitempty"`
	InvoiceNumber string            `json:"invoice_number,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type DraftCustomerRequest struct {
	CustomerID string `json:"customer_id"`
}

type DraftItemRequest struct {
	ProductID string `json:"product_id,omitempty"`
	SKUCode   string `json:"sku_code,omitempty"`
}

type DraftQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type PreviewResponse struct {
	InvoiceNumber string `json:"invoice_number"`
	Advisory      bool   `json:"advisory"`
}

const (
	GenderMale   = "Male"
	GenderFemale = "Female"
	GenderOther  = "Other"
)

var MonthLabels = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
