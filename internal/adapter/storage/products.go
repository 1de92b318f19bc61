package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/niksmo/storefront/internal/core/port"
)

var (
	_ port.CatalogStore    = ProductsRepository{}
	_ port.ProductsStorage = ProductsRepository{}
)

const productColumns = `
	product_id, name, category, sub_category, brand, type,
	description, image_url, price, market_price, rating, stock`

type ProductsRepository struct {
	sqldb sqldb
}

func NewProductsRepository(sqldb sqldb) ProductsRepository {
	return ProductsRepository{sqldb}
}

// StoreProducts upserts catalog records. A new product is inserted with its
// stock; an existing one gets every field refreshed except stock.
func (r ProductsRepository) StoreProducts(
	ctx context.Context, vs []domain.Product,
) error {
	const op = "ProductsRepository.StoreProducts"
	log := slog.With("op", op)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (product_id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			sub_category = EXCLUDED.sub_category,
			brand = EXCLUDED.brand,
			type = EXCLUDED.type,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url,
			price = EXCLUDED.price,
			market_price = EXCLUDED.market_price,
			rating = EXCLUDED.rating;
	`

	err := inTx(ctx, r.sqldb, op, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare stmt: %w", err)
		}
		defer func() {
			if err := stmt.Close(); err != nil {
				log.Error("failed to close prepared stmt", "err", err)
			}
		}()

		for _, v := range vs {
			_, err := stmt.ExecContext(ctx,
				v.ID, v.Name, v.Category, v.SubCategory, v.Brand, v.Type,
				v.Description, v.ImageURL, v.Price, v.MarketPrice, v.Rating,
				v.Stock,
			)
			if err != nil {
				return fmt.Errorf("failed to exec for %q: %w", v.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r ProductsRepository) GetProduct(
	ctx context.Context, productID string,
) (domain.Product, error) {
	const op = "ProductsRepository.GetProduct"

	if err := ctx.Err(); err != nil {
		return domain.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	p, err := getProduct(ctx, r.sqldb, productID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func getProduct(
	ctx context.Context, q querier, productID string,
) (domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE product_id = $1;`

	var v domain.Product
	err := q.QueryRowContext(ctx, query, productID).Scan(
		&v.ID, &v.Name, &v.Category, &v.SubCategory, &v.Brand, &v.Type,
		&v.Description, &v.ImageURL, &v.Price, &v.MarketPrice, &v.Rating,
		&v.Stock,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, fmt.Errorf(
				"%q: %w", productID, domain.ErrProductNotFound,
			)
		}
		return domain.Product{}, err
	}
	return v, nil
}
