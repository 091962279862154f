package postgres

import (
	"context"
	"strings"

	"fakturin/backend/internal/domain"
	"fakturin/backend/internal/store"
	"fakturin/backend/internal/xid"
)

const (
	customerColumns = `id::text AS id, name, phone, gender, created_at, updated_at`
	productColumns  = `id::text AS id, name, cost_price, selling_price, sku_code, created_at, updated_at`
)

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.Invalid("name", "is required")
	}
	if customer.ID == "" {
		customer.ID = xid.New("")
	}

	var created domain.Customer
	err := s.db.GetContext(ctx, &created, `
		INSERT INTO customers (id, name, phone, gender, created_at, updated_at)
		VALUES ($1,$2,$3,$4,now(),now())
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.Phone, customer.Gender)
	if err != nil {
		return nil, classify("create customer", err)
	}
	return normalizeCustomer(created), nil
}

func (s *Store) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	var customer domain.Customer
	err := s.db.GetContext(ctx, &customer, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	if err != nil {
		return nil, classify("find customer", err)
	}
	return normalizeCustomer(customer), nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.Invalid("name", "is required")
	}
	if !xid.Valid(customer.ID) {
		return nil, store.ErrNotFound
	}

	var updated domain.Customer
	err := s.db.GetContext(ctx, &updated, `
		UPDATE customers
		SET name = $2, phone = $3, gender = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.Phone, customer.Gender)
	if err != nil {
		return nil, classify("update customer", err)
	}
	return normalizeCustomer(updated), nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "customers", id)
}

func (s *Store) SearchCustomers(ctx context.Context, filter string, page domain.Page) (domain.CustomerSearchResult, error) {
	page = store.NormalizePage(page)
	pattern := likePattern(filter)
	result := domain.CustomerSearchResult{Items: []domain.Customer{}}

	err := s.db.GetContext(ctx, &result.TotalCount, `
		SELECT COUNT(*) FROM customers
		WHERE name ILIKE $1 ESCAPE '\' OR phone ILIKE $1 ESCAPE '\'
	`, pattern)
	if err != nil {
		return result, classify("count customers", err)
	}
	err = s.db.SelectContext(ctx, &result.Items, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE name ILIKE $1 ESCAPE '\' OR phone ILIKE $1 ESCAPE '\'
		ORDER BY updated_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, pattern, page.Limit, page.Offset())
	if err != nil {
		return result, classify("search customers", err)
	}
	for i := range result.Items {
		result.Items[i] = *normalizeCustomer(result.Items[i])
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("")
	}

	var created domain.Product
	err := s.db.GetContext(ctx, &created, `
		INSERT INTO products (id, name, cost_price, selling_price, sku_code, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING `+productColumns,
		product.ID, product.Name, product.CostPrice, product.SellingPrice, product.SKUCode)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Invalid("sku_code", "already exists")
		}
		return nil, classify("create product", err)
	}
	return normalizeProduct(created), nil
}

func (s *Store) FindProductByID(ctx context.Context, id string) (*domain.Product, error) {
	if !xid.Valid(id) {
		return nil, store.ErrNotFound
	}
	var product domain.Product
	err := s.db.GetContext(ctx, &product, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, classify("find product", err)
	}
	return normalizeProduct(product), nil
}

func (s *Store) FindProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.GetContext(ctx, &product, `SELECT `+productColumns+` FROM products WHERE sku_code = $1`, strings.TrimSpace(sku))
	if err != nil {
		return nil, classify("find product by sku", err)
	}
	return normalizeProduct(product), nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}
	if !xid.Valid(product.ID) {
		return nil, store.ErrNotFound
	}

	var updated domain.Product
	err := s.db.GetContext(ctx, &updated, `
		UPDATE products
		SET name = $2, cost_price = $3, selling_price = $4, sku_code = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.CostPrice, product.SellingPrice, product.SKUCode)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Invalid("sku_code", "already exists")
		}
		return nil, classify("update product", err)
	}
	return normalizeProduct(updated), nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "products", id)
}

func (s *Store) SearchProducts(ctx context.Context, filter string, page domain.Page) (domain.ProductSearchResult, error) {
	page = store.NormalizePage(page)
	pattern := likePattern(filter)
	result := domain.ProductSearchResult{Items: []domain.Product{}}

	err := s.db.GetContext(ctx, &result.TotalCount, `
		SELECT COUNT(*) FROM products WHERE name ILIKE $1 ESCAPE '\'
	`, pattern)
	if err != nil {
		return result, classify("count products", err)
	}
	err = s.db.SelectContext(ctx, &result.Items, `
		SELECT `+productColumns+`
		FROM products
		WHERE name ILIKE $1 ESCAPE '\'
		ORDER BY updated_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, pattern, page.Limit, page.Offset())
	if err != nil {
		return result, classify("search products", err)
	}
	for i := range result.Items {
		result.Items[i] = *normalizeProduct(result.Items[i])
	}
	return result, nil
}

// deleteByID is only called with the fixed table names above.
func (s *Store) deleteByID(ctx context.Context, table string, id string) error {
	if !xid.Valid(id) {
		return store.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return classify("delete from "+table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify("delete from "+table, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func normalizeCustomer(c domain.Customer) *domain.Customer {
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c
}

func normalizeProduct(p domain.Product) *domain.Product {
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p
}
