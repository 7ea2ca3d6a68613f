package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.DB()}
}

func (r *catalogRepository) Upsert(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, base_price_minor, base_stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    base_price_minor = EXCLUDED.base_price_minor,
		    base_stock = EXCLUDED.base_stock,
		    active = EXCLUDED.active,
		    updated_at = EXCLUDED.updated_at
	`,
		product.ID, product.Name, product.BasePriceMinor, product.BaseStock,
		product.Active, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM product_variants WHERE product_id = $1`, product.ID); err != nil {
		return fmt.Errorf("clear product variants: %w", err)
	}

	for pos, variant := range product.Variants {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO product_variants (product_id, selector, price_minor, stock, pos)
			VALUES ($1,$2,$3,$4,$5)
		`, product.ID, variant.Selector, variant.PriceMinor, variant.Stock, pos); err != nil {
			return fmt.Errorf("insert product variant: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert product: %w", err)
	}

	return nil
}

func (r *catalogRepository) Get(productID string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.loadProduct(ctx, productID)
}

func (r *catalogRepository) ResolveLine(productID, variantSelector string) (domain.ResolvedLine, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	product, err := r.loadProduct(ctx, productID)
	if err != nil {
		return domain.ResolvedLine{}, err
	}
	if !product.Active {
		return domain.ResolvedLine{}, domain.ErrProductNotFound
	}

	priceMinor, stock, selector, err := resolveProductLine(product, variantSelector)
	if err != nil {
		return domain.ResolvedLine{}, err
	}

	return domain.ResolvedLine{
		ProductID:       product.ID,
		VariantSelector: selector,
		DisplayName:     product.Name,
		UnitPriceMinor:  priceMinor,
		AvailableStock:  stock,
	}, nil
}

// DecrementStock списывает qty с нижней границей ноль одним conditional
// UPDATE с GREATEST: параллельные подтверждения не уводят остаток в минус.
func (r *catalogRepository) DecrementStock(productID, variantSelector string, qty int32) (int32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	product, err := r.loadProduct(ctx, productID)
	if err != nil {
		return 0, err
	}

	_, _, selector, err := resolveProductLine(product, variantSelector)
	if err != nil {
		return 0, err
	}

	var remaining int32
	if selector == "" {
		err = r.db.QueryRowContext(ctx, `
			UPDATE products
			SET base_stock = GREATEST(base_stock - $2, 0),
			    updated_at = $3
			WHERE id = $1
			RETURNING base_stock
		`, productID, qty, time.Now().UTC()).Scan(&remaining)
	} else {
		err = r.db.QueryRowContext(ctx, `
			UPDATE product_variants
			SET stock = GREATEST(stock - $3, 0)
			WHERE product_id = $1
			  AND selector = $2
			RETURNING stock
		`, productID, selector, qty).Scan(&remaining)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrVariantNotFound
		}
		return 0, fmt.Errorf("decrement stock: %w", err)
	}

	return remaining, nil
}

func (r *catalogRepository) Deactivate(productID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET active = FALSE,
		    updated_at = $2
		WHERE id = $1
	`, productID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}

	return requireAffected(res, domain.ErrProductNotFound)
}

func (r *catalogRepository) loadProduct(ctx context.Context, productID string) (domain.Product, error) {
	var product domain.Product

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, base_price_minor, base_stock, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, productID).Scan(
		&product.ID, &product.Name, &product.BasePriceMinor, &product.BaseStock,
		&product.Active, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT selector, price_minor, stock
		FROM product_variants
		WHERE product_id = $1
		ORDER BY pos ASC
	`, productID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("load product variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var variant domain.Variant
		if err := rows.Scan(&variant.Selector, &variant.PriceMinor, &variant.Stock); err != nil {
			return domain.Product{}, fmt.Errorf("scan product variant: %w", err)
		}
		product.Variants = append(product.Variants, variant)
	}
	if err := rows.Err(); err != nil {
		return domain.Product{}, fmt.Errorf("iterate product variants: %w", err)
	}

	return product, nil
}

// resolveProductLine применяет правило разрешения цены/остатка: явный
// selector → вариант; иначе базовая цена товара, если задана; иначе первый
// объявленный вариант.
func resolveProductLine(product domain.Product, variantSelector string) (int64, int32, string, error) {
	if variantSelector != "" {
		for _, v := range product.Variants {
			if v.Selector == variantSelector {
				return v.PriceMinor, v.Stock, v.Selector, nil
			}
		}
		return 0, 0, "", domain.ErrVariantNotFound
	}

	if product.BasePriceMinor > 0 {
		return product.BasePriceMinor, product.BaseStock, "", nil
	}
	if len(product.Variants) > 0 {
		v := product.Variants[0]
		return v.PriceMinor, v.Stock, v.Selector, nil
	}
	return 0, 0, "", domain.ErrVariantNotFound
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
