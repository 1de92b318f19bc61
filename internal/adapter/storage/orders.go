package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/niksmo/storefront/internal/core/domain"
	"github.com/niksmo/storefront/internal/core/port"
)

var (
	_ port.OrderStore    = OrdersRepository{}
	_ port.CheckoutStore = OrdersRepository{}
)

// An OrdersRepository reads orders and runs checkout commits. Stock is
// only written here.
type OrdersRepository struct {
	ProductsRepository
	sqldb sqldb
}

func NewOrdersRepository(sqldb sqldb) OrdersRepository {
	return OrdersRepository{
		ProductsRepository: NewProductsRepository(sqldb),
		sqldb:              sqldb,
	}
}

// Atomically runs fn in one transaction after locking the product rows in
// ascending id order.
func (r OrdersRepository) Atomically(
	ctx context.Context, productIDs []string, fn func(port.CheckoutTx) error,
) error {
	const op = "OrdersRepository.Atomically"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var fnErr error
	err := inTx(ctx, r.sqldb, op, func(tx *sql.Tx) error {
		lockQuery := `
			SELECT product_id FROM products
			WHERE product_id = ANY($1)
			ORDER BY product_id
			FOR UPDATE;`
		rows, err := tx.QueryContext(ctx, lockQuery, ids)
		if err != nil {
			return fmt.Errorf("%s: failed to lock products: %w", op, err)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		fnErr = fn(checkoutTx{tx: tx, locked: ids})
		return fnErr
	})
	switch {
	case fnErr != nil:
		return fnErr
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r OrdersRepository) GetOrder(
	ctx context.Context, orderID string,
) (domain.Order, error) {
	const op = "OrdersRepository.GetOrder"

	if err := ctx.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	orderQuery := `
		SELECT
			order_id, user_id, total_price, status, created_at,
			first_name, last_name, address, country, state, zip_code,
			payment_method
		FROM orders WHERE order_id = $1;`

	var o domain.Order
	var status string
	sh := &o.Shipping
	err := r.sqldb.QueryRowContext(ctx, orderQuery, orderID).Scan(
		&o.ID, &o.UserID, &o.TotalPrice, &status, &o.CreatedAt,
		&sh.FirstName, &sh.LastName, &sh.Address, &sh.Country, &sh.State,
		&sh.ZipCode, &sh.PaymentMethod,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, fmt.Errorf(
				"%s: %q: %w", op, orderID, domain.ErrOrderNotFound,
			)
		}
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = o.CreatedAt.UTC()

	linesQuery := `
		SELECT product_id, quantity, price_at_purchase
		FROM order_items WHERE order_id = $1 ORDER BY product_id;`
	rows, err := r.sqldb.QueryContext(ctx, linesQuery, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		l := domain.OrderLine{OrderID: o.ID}
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.PriceAtPurchase); err != nil {
			return domain.Order{}, fmt.Errorf("%s: %w", op, err)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

type checkoutTx struct {
	tx     *sql.Tx
	locked []string
}

func (t checkoutTx) ConditionalDecrementStock(
	ctx context.Context, productID string, amount, expected int,
) error {
	const op = "checkoutTx.ConditionalDecrementStock"

	if _, ok := slices.BinarySearch(t.locked, productID); !ok {
		return fmt.Errorf("%s: product %q is not locked by this tx", op, productID)
	}
	if amount <= 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrInvalidQuantity)
	}
	if expected < amount {
		return fmt.Errorf("%s: %w", op, &domain.InsufficientStockError{
			ProductID: productID,
			Available: expected,
			Requested: amount,
		})
	}

	query := `
		UPDATE products SET stock = stock - $2
		WHERE product_id = $1 AND stock = $3;`
	res, err := t.tx.ExecContext(ctx, query, productID, amount, expected)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf(
			"%s: %q: expected %d: %w", op, productID, expected, domain.ErrStockChanged,
		)
	}
	return nil
}

func (t checkoutTx) CreateOrder(
	ctx context.Context, o domain.Order,
) (string, error) {
	const op = "checkoutTx.CreateOrder"
	log := slog.With("op", op)

	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	orderQuery := `
		INSERT INTO orders (
			order_id, user_id, total_price, status, created_at,
			first_name, last_name, address, country, state, zip_code,
			payment_method
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`
	sh := o.Shipping
	_, err := t.tx.ExecContext(ctx, orderQuery,
		o.ID, o.UserID, o.TotalPrice, string(o.Status), o.CreatedAt,
		sh.FirstName, sh.LastName, sh.Address, sh.Country, sh.State,
		sh.ZipCode, sh.PaymentMethod,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4);`,
	)
	if err != nil {
		return "", fmt.Errorf("%s: failed to prepare stmt: %w", op, err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			log.Error("failed to close prepared stmt", "err", err)
		}
	}()

	for _, l := range o.Lines {
		_, err := stmt.ExecContext(ctx,
			o.ID, l.ProductID, l.Quantity, l.PriceAtPurchase,
		)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}
	return o.ID, nil
}

// ConsumeCartLines removes the lines bought whole and shrinks the rest.
// The delete goes first so no row passes through a zero quantity.
func (t checkoutTx) ConsumeCartLines(
	ctx context.Context, userID string, lines []domain.CartLine,
) error {
	const op = "checkoutTx.ConsumeCartLines"

	if len(lines) == 0 {
		return nil
	}

	productIDs := make([]string, len(lines))
	quantities := make([]int64, len(lines))
	for i, l := range lines {
		if l.Quantity <= 0 {
			return fmt.Errorf("%s: %q: %w", op, l.ProductID, domain.ErrInvalidQuantity)
		}
		productIDs[i] = l.ProductID
		quantities[i] = int64(l.Quantity)
	}

	deleteQuery := `
		DELETE FROM cart_items c
		USING unnest($2::text[], $3::bigint[]) AS b (product_id, quantity)
		WHERE c.user_id = $1
			AND c.product_id = b.product_id
			AND c.quantity <= b.quantity;`
	_, err := t.tx.ExecContext(ctx, deleteQuery, userID, productIDs, quantities)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	updateQuery := `
		UPDATE cart_items c SET quantity = c.quantity - b.quantity
		FROM unnest($2::text[], $3::bigint[]) AS b (product_id, quantity)
		WHERE c.user_id = $1 AND c.product_id = b.product_id;`
	_, err = t.tx.ExecContext(ctx, updateQuery, userID, productIDs, quantities)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
