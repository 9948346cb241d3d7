package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/amazon-catalog-parser/internal/models"
)

// StoredProduct is the latest assembled state of one ASIN.
type StoredProduct struct {
	Product   models.Product   `json:"product"`
	Warnings  []models.Warning `json:"warnings"`
	LastQuery string           `json:"last_query,omitempty"`
	SeenCount int              `json:"seen_count"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type ProductRepository struct {
	db *DB
}

func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// UpsertWithTx stores product as the current state of its ASIN and bumps
// the seen counter. It reports whether the ASIN was new.
func (r *ProductRepository) UpsertWithTx(ctx context.Context, tx pgx.Tx, p models.Product, warnings []models.Warning, query string) (bool, error) {
	productJSON, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("failed to marshal product: %w", err)
	}
	if warnings == nil {
		warnings = []models.Warning{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return false, fmt.Errorf("failed to marshal warnings: %w", err)
	}

	var currentPrice *float64
	var currency *string
	if p.Price != nil {
		currentPrice = p.Price.Current
		currency = models.String(p.Price.Currency)
	}
	var rating *float64
	var reviewCount *int
	if p.Rating != nil {
		rating = p.Rating.Rating
		reviewCount = p.Rating.ReviewCount
	}

	sql := `
		INSERT INTO catalog_products (
			asin, title, brand, category, url,
			current_price, currency, rating, review_count, availability,
			product, warnings, last_query
		) VALUES (
			$1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, '')
		)
		ON CONFLICT (asin) DO UPDATE SET
			title = EXCLUDED.title,
			brand = EXCLUDED.brand,
			category = EXCLUDED.category,
			url = EXCLUDED.url,
			current_price = EXCLUDED.current_price,
			currency = EXCLUDED.currency,
			rating = EXCLUDED.rating,
			review_count = EXCLUDED.review_count,
			availability = EXCLUDED.availability,
			product = EXCLUDED.product,
			warnings = EXCLUDED.warnings,
			last_query = COALESCE(EXCLUDED.last_query, catalog_products.last_query),
			seen_count = catalog_products.seen_count + 1,
			updated_at = NOW()
		RETURNING (xmax = 0)`

	var inserted bool
	err = tx.QueryRow(ctx, sql,
		p.ASIN, p.Title, p.Brand, p.Category, p.URL,
		currentPrice, currency, rating, reviewCount, string(p.Availability),
		productJSON, warningsJSON, query,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert product %s: %w", p.ASIN, err)
	}

	return inserted, nil
}

func (r *ProductRepository) Get(ctx context.Context, asin string) (*StoredProduct, error) {
	sql := `
		SELECT product, warnings, COALESCE(last_query, ''), seen_count, created_at, updated_at
		FROM catalog_products
		WHERE asin = $1`

	sp, err := scanStoredProduct(r.db.pool.QueryRow(ctx, sql, asin))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", asin, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", asin, err)
	}
	return sp, nil
}

// ListRecent returns the most recently updated products first.
func (r *ProductRepository) ListRecent(ctx context.Context, limit int) ([]*StoredProduct, error) {
	if limit <= 0 {
		limit = 50
	}

	sql := `
		SELECT product, warnings, COALESCE(last_query, ''), seen_count, created_at, updated_at
		FROM catalog_products
		ORDER BY updated_at DESC
		LIMIT $1`

	rows, err := r.db.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*StoredProduct{}
	for rows.Next() {
		sp, err := scanStoredProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

func scanStoredProduct(row pgx.Row) (*StoredProduct, error) {
	var productJSON, warningsJSON []byte
	sp := &StoredProduct{}
	if err := row.Scan(&productJSON, &warningsJSON, &sp.LastQuery, &sp.SeenCount, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(productJSON, &sp.Product); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	if err := json.Unmarshal(warningsJSON, &sp.Warnings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
	}
	return sp, nil
}
