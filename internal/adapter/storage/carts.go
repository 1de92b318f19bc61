package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/niksmo/storefront/internal/core/port"
)

var _ port.CartStore = CartsRepository{}

type CartsRepository struct {
	sqldb sqldb
}

func NewCartsRepository(sqldb sqldb) CartsRepository {
	return CartsRepository{sqldb}
}

func (r CartsRepository) CartLines(
	ctx context.Context, userID string,
) ([]domain.CartLine, error) {
	const op = "CartsRepository.CartLines"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query := `
		SELECT product_id, quantity FROM cart_items
		WHERE user_id = $1 ORDER BY product_id;`

	rows, err := r.sqldb.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		l := domain.CartLine{UserID: userID}
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return lines, nil
}

func (r CartsRepository) AdjustCartLine(
	ctx context.Context, userID, productID string, delta int,
) (qty int, err error) {
	const op = "CartsRepository.AdjustCartLine"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if delta == 0 {
		return 0, fmt.Errorf("%s: %w", op, domain.ErrInvalidQuantity)
	}

	if delta > 0 {
		query := `
			INSERT INTO cart_items (user_id, product_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, product_id) DO UPDATE SET
				quantity = cart_items.quantity + EXCLUDED.quantity
			RETURNING quantity;`
		err := r.sqldb.QueryRowContext(ctx, query, userID, productID, delta).
			Scan(&qty)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		return qty, nil
	}

	err = inTx(ctx, r.sqldb, op, func(tx *sql.Tx) error {
		selectQuery := `
			SELECT quantity FROM cart_items
			WHERE user_id = $1 AND product_id = $2
			FOR UPDATE;`
		err := tx.QueryRowContext(ctx, selectQuery, userID, productID).Scan(&qty)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCartLineNotFound
		}
		if err != nil {
			return err
		}

		qty += delta
		if qty > 0 {
			_, err = tx.ExecContext(ctx, `
				UPDATE cart_items SET quantity = $3
				WHERE user_id = $1 AND product_id = $2;`,
				userID, productID, qty,
			)
			return err
		}

		qty = 0
		_, err = tx.ExecContext(ctx, `
			DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2;`,
			userID, productID,
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return qty, nil
}

func (r CartsRepository) RemoveCartLine(
	ctx context.Context, userID, productID string,
) error {
	const op = "CartsRepository.RemoveCartLine"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2;`
	res, err := r.sqldb.ExecContext(ctx, query, userID, productID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrCartLineNotFound)
	}
	return nil
}
