package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fakturin/backend/internal/domain"
	"fakturin/backend/internal/invoice"
	"fakturin/backend/internal/store"
	"fakturin/backend/internal/xid"
)

const invoiceColumns = `
	id::text AS id, invoice_number, customer_id::text AS customer_id, customer_name,
	customer_phone, total_amount, total_quantity, issue_date, created_at`

type invoiceRow struct {
	ID            string          `db:"id"`
	InvoiceNumber string          `db:"invoice_number"`
	CustomerID    string          `db:"customer_id"`
	CustomerName  string          `db:"customer_name"`
	CustomerPhone string          `db:"customer_phone"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	TotalQuantity int             `db:"total_quantity"`
	IssueDate     time.Time       `db:"issue_date"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r invoiceRow) toDomain(items []domain.LineItem) domain.Invoice {
	if items == nil {
		items = []domain.LineItem{}
	}
	return domain.Invoice{
		ID:            r.ID,
		InvoiceNumber: r.InvoiceNumber,
		Customer: domain.CustomerSnapshot{
			ID:    r.CustomerID,
			Name:  r.CustomerName,
			Phone: r.CustomerPhone,
		},
		Products:      items,
		TotalAmount:   r.TotalAmount,
		TotalQuantity: r.TotalQuantity,
		IssueDate:     dateOnly(r.IssueDate),
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

type itemRow struct {
	InvoiceID   string          `db:"invoice_id"`
	ProductID   string          `db:"product_id"`
	ProductName string          `db:"product_name"`
	Quantity    int             `db:"quantity"`
	Price       decimal.Decimal `db:"price"`
}

func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	if err := store.ValidateInvoice(inv); err != nil {
		return nil, err
	}
	if inv.ID == "" {
		inv.ID = xid.New("")
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	inv.IssueDate = dateOnly(inv.IssueDate)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify("begin create invoice", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, customer_id, customer_name, customer_phone,
			total_amount, total_quantity, issue_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, inv.ID, inv.InvoiceNumber, inv.Customer.ID, inv.Customer.Name, inv.Customer.Phone,
		inv.TotalAmount, inv.TotalQuantity, inv.IssueDate, inv.CreatedAt)
	if err != nil {
		return nil, classify("insert invoice", err)
	}
	if err := insertItems(ctx, tx, inv.ID, inv.Products); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, classify("commit create invoice", err)
	}

	created := inv
	created.Products = append([]domain.LineItem(nil), inv.Products...)
	return &created, nil
}

func (s *Store) FindInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	return findInvoice(ctx, s.db, id, false)
}

func (s *Store) UpdateInvoice(ctx context.Context, id string, update domain.InvoiceUpdate) (*domain.Invoice, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify("begin update invoice", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := findInvoice(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	updated := invoice.ApplyUpdate(*existing, update)
	if err := store.ValidateInvoice(updated); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE invoices
		SET invoice_number = $2, customer_id = $3, customer_name = $4, customer_phone = $5,
			total_amount = $6, total_quantity = $7, issue_date = $8
		WHERE id = $1
	`, id, updated.InvoiceNumber, updated.Customer.ID, updated.Customer.Name, updated.Customer.Phone,
		updated.TotalAmount, updated.TotalQuantity, updated.IssueDate)
	if err != nil {
		return nil, classify("update invoice", err)
	}
	if update.Products != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, id); err != nil {
			return nil, classify("replace invoice items", err)
		}
		if err := insertItems(ctx, tx, id, updated.Products); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, classify("commit update invoice", err)
	}
	return &updated, nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	if !xid.Valid(id) {
		return store.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return classify("delete invoice", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify("delete invoice", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SearchInvoices(ctx context.Context, filter string, page domain.Page) (domain.InvoiceSearchResult, error) {
	page = store.NormalizePage(page)
	pattern := likePattern(filter)
	result := domain.InvoiceSearchResult{Items: []domain.Invoice{}}

	err := s.db.GetContext(ctx, &result.TotalCount, `
		SELECT COUNT(*)
		FROM invoices
		WHERE invoice_number ILIKE $1 ESCAPE '\' OR customer_name ILIKE $1 ESCAPE '\' OR customer_phone ILIKE $1 ESCAPE '\'
	`, pattern)
	if err != nil {
		return result, classify("count invoices", err)
	}
	if result.TotalCount == 0 {
		return result, nil
	}

	var rows []invoiceRow
	err = s.db.SelectContext(ctx, &rows, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE invoice_number ILIKE $1 ESCAPE '\' OR customer_name ILIKE $1 ESCAPE '\' OR customer_phone ILIKE $1 ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, pattern, page.Limit, page.Offset())
	if err != nil {
		return result, classify("search invoices", err)
	}
	result.Items, err = attachItems(ctx, s.db, rows)
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *Store) MonthlyRevenue(ctx context.Context) ([]domain.MonthRevenue, error) {
	var rows []struct {
		Month int             `db:"month"`
		Total decimal.Decimal `db:"total"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT EXTRACT(MONTH FROM issue_date)::int AS month, COALESCE(SUM(total_amount), 0) AS total
		FROM invoices
		GROUP BY 1
	`)
	if err != nil {
		return nil, classify("monthly revenue", err)
	}

	var totals [12]decimal.Decimal
	for _, row := range rows {
		if row.Month >= 1 && row.Month <= 12 {
			totals[row.Month-1] = row.Total
		}
	}
	rollup := make([]domain.MonthRevenue, 0, 12)
	for i, label := range domain.MonthLabels {
		rollup = append(rollup, domain.MonthRevenue{Month: label, TotalAmount: totals[i]})
	}
	return rollup, nil
}

func (s *Store) DashboardSummary(ctx context.Context, start time.Time, endInclusive time.Time) (domain.DashboardSummary, error) {
	from := dateOnly(start)
	to := dateOnly(endInclusive)
	summary := domain.DashboardSummary{
		TotalRevenue:     decimal.Zero,
		AverageItemPrice: decimal.Zero,
		RecentSales:      []domain.Invoice{},
	}

	var totals struct {
		Revenue   decimal.Decimal `db:"revenue"`
		Sales     int64           `db:"sales"`
		Customers int64           `db:"customers"`
		Units     int64           `db:"units"`
	}
	var lines struct {
		Count    int64           `db:"line_count"`
		PriceSum decimal.Decimal `db:"price_sum"`
	}
	var recent []domain.Invoice

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.db.GetContext(gctx, &totals, `
			SELECT COALESCE(SUM(total_amount), 0) AS revenue,
				COUNT(*) AS sales,
				COUNT(DISTINCT customer_id) AS customers,
				COALESCE(SUM(total_quantity), 0) AS units
			FROM invoices
			WHERE issue_date BETWEEN $1 AND $2
		`, from, to)
		return classify("dashboard totals", err)
	})
	g.Go(func() error {
		err := s.db.GetContext(gctx, &lines, `
			SELECT COUNT(*) AS line_count, COALESCE(SUM(ii.price), 0) AS price_sum
			FROM invoice_items ii
			JOIN invoices i ON i.id = ii.invoice_id
			WHERE i.issue_date BETWEEN $1 AND $2
		`, from, to)
		return classify("dashboard line items", err)
	})
	g.Go(func() error {
		var rows []invoiceRow
		err := s.db.SelectContext(gctx, &rows, `
			SELECT `+invoiceColumns+`
			FROM invoices
			WHERE issue_date BETWEEN $1 AND $2
			ORDER BY created_at DESC, id DESC
			LIMIT 5
		`, from, to)
		if err != nil {
			return classify("dashboard recent sales", err)
		}
		recent, err = attachItems(gctx, s.db, rows)
		return err
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}

	summary.TotalRevenue = totals.Revenue
	summary.TotalSaleCount = totals.Sales
	summary.DistinctCustomers = totals.Customers
	summary.TotalSoldItemUnits = totals.Units
	summary.TotalLineItems = lines.Count
	if lines.Count > 0 {
		summary.AverageItemPrice = lines.PriceSum.Div(decimal.NewFromInt(lines.Count))
	}
	summary.RecentSales = recent
	return summary, nil
}

func findInvoice(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var row invoiceRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		return nil, classify("find invoice", err)
	}
	invoices, err := attachItems(ctx, q, []invoiceRow{row})
	if err != nil {
		return nil, err
	}
	return &invoices[0], nil
}

// attachItems loads the line items of rows with one query and returns the
// invoices in the order of rows.
func attachItems(ctx context.Context, q sqlx.QueryerContext, rows []invoiceRow) ([]domain.Invoice, error) {
	invoices := make([]domain.Invoice, 0, len(rows))
	if len(rows) == 0 {
		return invoices, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var items []itemRow
	err := sqlx.SelectContext(ctx, q, &items, `
		SELECT invoice_id::text AS invoice_id, product_id::text AS product_id, product_name, quantity, price
		FROM invoice_items
		WHERE invoice_id = ANY($1::text[]::uuid[])
		ORDER BY invoice_id, position
	`, ids)
	if err != nil {
		return nil, classify("load invoice items", err)
	}

	byInvoice := make(map[string][]domain.LineItem, len(rows))
	for _, item := range items {
		byInvoice[item.InvoiceID] = append(byInvoice[item.InvoiceID], domain.LineItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
	}
	for _, row := range rows {
		invoices = append(invoices, row.toDomain(byInvoice[row.ID]))
	}
	return invoices, nil
}

func insertItems(ctx context.Context, tx *sqlx.Tx, invoiceID string, items []domain.LineItem) error {
	for i, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, position, product_id, product_name, quantity, price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, invoiceID, i, item.ProductID, item.ProductName, item.Quantity, item.Price)
		if err != nil {
			return classify("insert invoice item", err)
		}
	}
	return nil
}

// likePattern turns a free-text filter into a contains pattern with the LIKE
// metacharacters escaped. An empty filter matches every row.
func likePattern(filter string) string {
	filter = strings.TrimSpace(filter)
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(filter) + "%"
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
