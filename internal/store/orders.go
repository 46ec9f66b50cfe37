package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/askhat/go-shop-store/internal/database"
	"github.com/askhat/go-shop-store/internal/models"
)

type CreateOrderRequest struct {
	CustomerID int64
	Items      []OrderItemRequest
}

type OrderItemRequest struct {
	ProductID int64
	Quantity  int
}

func generateOrderNumber() string {
	return "ORD-" + uuid.NewString()
}

// recomputeTotalTx re-establishes the order total invariant inside the
// caller's transaction: total = SUM(product price * quantity) over the
// order's current items, 0.00 for an empty order. The write touches the
// total column only.
func recomputeTotalTx(ctx context.Context, tx *sql.Tx, orderID int64) (decimal.Decimal, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)",
		orderID).Scan(&exists)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return decimal.Decimal{}, database.ErrOrderNotFound
	}

	var total decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(p.price * oi.quantity), 0)::numeric(10,2)
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = $1`,
		orderID).Scan(&total)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sum order items: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET total = $1 WHERE id = $2",
		total, orderID)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("update order total: %w", err)
	}

	return total, nil
}

// RecomputeOrderTotal recomputes and persists the total of a single
// order as one read-modify-write transaction. It is idempotent: with
// unchanged items, repeated calls compute and store the same value.
func RecomputeOrderTotal(ctx context.Context, db *sql.DB, orderID int64) (decimal.Decimal, error) {
	var total decimal.Decimal

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		t, err := recomputeTotalTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		total = t
		return nil
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	return total, nil
}

func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, database.ErrInvalidQuantity
		}
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)",
			req.CustomerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check customer exists: %w", err)
		}
		if !exists {
			return database.ErrCustomerNotFound
		}

		var orderID int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (order_number, customer_id, status, total, created_at, updated_at, version)
			 VALUES ($1, $2, $3, 0.00, NOW(), NOW(), 1)
			 RETURNING id`,
			generateOrderNumber(), req.CustomerID, models.OrderStatusProcessing).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range req.Items {
			var stockQuantity int
			err := tx.QueryRowContext(ctx,
				`SELECT stock_quantity
				 FROM products
				 WHERE id = $1
				 FOR UPDATE NOWAIT`,
				item.ProductID).Scan(&stockQuantity)
			if err != nil {
				if err == sql.ErrNoRows {
					return database.ErrProductNotFound
				}
				return fmt.Errorf("lock product %d: %w", item.ProductID, err)
			}

			if stockQuantity < item.Quantity {
				return database.ErrInsufficientStock
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, created_at)
				 VALUES ($1, $2, $3, NOW())`,
				orderID, item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}

			if err := DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if _, err := recomputeTotalTx(ctx, tx, orderID); err != nil {
			return err
		}

		o, err := fetchOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		order = o

		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func fetchOrderTx(ctx context.Context, tx *sql.Tx, orderID int64) (*models.Order, error) {
	order := &models.Order{}

	err := tx.QueryRowContext(ctx,
		`SELECT id, order_number, customer_id, status, total, created_at, updated_at, version
		 FROM orders WHERE id = $1`,
		orderID).Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerID,
		&order.Status,
		&order.Total,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("fetch order: %w", err)
	}

	return order, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `
		SELECT id, order_number, customer_id, status, total, created_at, updated_at, version
		FROM orders
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerID,
		&order.Status,
		&order.Total,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	itemsQuery := `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity,
		       p.price, (p.price * oi.quantity)::numeric(10,2), oi.created_at
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`

	rows, err := db.QueryContext(ctx, itemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.ItemPrice,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	order.Items = items

	return order, nil
}

// AddOrderItem inserts a line item, consumes product stock and
// recomputes the parent order's total, all in one transaction.
func AddOrderItem(ctx context.Context, db *sql.DB, orderID, productID int64, quantity int) (*models.OrderItem, error) {
	if quantity <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	item := &models.OrderItem{}

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)",
			orderID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return database.ErrOrderNotFound
		}

		var price decimal.Decimal
		var stockQuantity int
		err = tx.QueryRowContext(ctx,
			`SELECT price, stock_quantity
			 FROM products
			 WHERE id = $1
			 FOR UPDATE`,
			productID).Scan(&price, &stockQuantity)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("lock product: %w", err)
		}

		if stockQuantity < quantity {
			return database.ErrInsufficientStock
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, created_at)
			 VALUES ($1, $2, $3, NOW())
			 RETURNING id, created_at`,
			orderID, productID, quantity).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}

		if err := DecrementStock(ctx, tx, productID, quantity); err != nil {
			return err
		}

		if _, err := recomputeTotalTx(ctx, tx, orderID); err != nil {
			return err
		}

		item.OrderID = orderID
		item.ProductID = productID
		item.Quantity = quantity
		item.UnitPrice = price
		item.ItemPrice = price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// UpdateOrderItemQuantity changes a line item's quantity, applies the
// stock delta and recomputes the parent order's total in the same
// transaction. Quantity must stay positive; removal is explicit.
func UpdateOrderItemQuantity(ctx context.Context, db *sql.DB, itemID int64, quantity int) (*models.OrderItem, error) {
	if quantity <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	item := &models.OrderItem{}

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var oldQuantity int
		err := tx.QueryRowContext(ctx,
			`SELECT order_id, product_id, quantity, created_at
			 FROM order_items
			 WHERE id = $1
			 FOR UPDATE`,
			itemID).Scan(&item.OrderID, &item.ProductID, &oldQuantity, &item.CreatedAt)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderItemNotFound
			}
			return fmt.Errorf("lock order item: %w", err)
		}

		var price decimal.Decimal
		var stockQuantity int
		err = tx.QueryRowContext(ctx,
			`SELECT price, stock_quantity
			 FROM products
			 WHERE id = $1
			 FOR UPDATE`,
			item.ProductID).Scan(&price, &stockQuantity)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("lock product: %w", err)
		}

		delta := quantity - oldQuantity
		if delta > 0 {
			if stockQuantity < delta {
				return database.ErrInsufficientStock
			}
			if err := DecrementStock(ctx, tx, item.ProductID, delta); err != nil {
				return err
			}
		} else if delta < 0 {
			if err := RestoreStock(ctx, tx, item.ProductID, -delta); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE order_items SET quantity = $1 WHERE id = $2",
			quantity, itemID)
		if err != nil {
			return fmt.Errorf("update order item: %w", err)
		}

		if _, err := recomputeTotalTx(ctx, tx, item.OrderID); err != nil {
			return err
		}

		item.ID = itemID
		item.Quantity = quantity
		item.UnitPrice = price
		item.ItemPrice = price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// RemoveOrderItem deletes a line item, restores its stock and
// recomputes the parent order's total in the same transaction.
func RemoveOrderItem(ctx context.Context, db *sql.DB, itemID int64) error {
	return database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var orderID, productID int64
		var quantity int
		err := tx.QueryRowContext(ctx,
			`SELECT order_id, product_id, quantity
			 FROM order_items
			 WHERE id = $1
			 FOR UPDATE`,
			itemID).Scan(&orderID, &productID, &quantity)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderItemNotFound
			}
			return fmt.Errorf("lock order item: %w", err)
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM order_items WHERE id = $1", itemID)
		if err != nil {
			return fmt.Errorf("delete order item: %w", err)
		}

		if err := RestoreStock(ctx, tx, productID, quantity); err != nil {
			return err
		}

		_, err = recomputeTotalTx(ctx, tx, orderID)
		return err
	})
}

// ClearOrderItems removes every line item of an order, restores stock
// and leaves the order with total 0.00.
func ClearOrderItems(ctx context.Context, db *sql.DB, orderID int64) error {
	return database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		if err := restockOrderItemsTx(ctx, tx, orderID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID)
		if err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}

		_, err = recomputeTotalTx(ctx, tx, orderID)
		return err
	})
}

// DeleteOrder removes the order and its line items in one transaction.
// The order exclusively owns its items, so the cascade is explicit here
// rather than left to the schema.
func DeleteOrder(ctx context.Context, db *sql.DB, orderID int64) error {
	return database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)",
			orderID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return database.ErrOrderNotFound
		}

		if err := restockOrderItemsTx(ctx, tx, orderID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID)
		if err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}

		return nil
	})
}

func restockOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, quantity
		 FROM order_items
		 WHERE order_id = $1
		 FOR UPDATE`,
		orderID)
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	type restock struct {
		productID int64
		quantity  int
	}
	var restocks []restock
	for rows.Next() {
		var r restock
		if err := rows.Scan(&r.productID, &r.quantity); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		restocks = append(restocks, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	for _, r := range restocks {
		if err := RestoreStock(ctx, tx, r.productID, r.quantity); err != nil {
			return err
		}
	}

	return nil
}

func UpdateOrderStatus(ctx context.Context, db *sql.DB, orderID int64, status string) error {
	if !models.ValidOrderStatus(status) {
		return database.ErrInvalidStatus
	}

	result, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, updated_at = NOW(), version = version + 1
		 WHERE id = $2`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, customerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT id, order_number, customer_id, status, total, created_at, updated_at, version
		FROM orders
		WHERE customer_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, customerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.OrderNumber,
			&order.CustomerID,
			&order.Status,
			&order.Total,
			&order.CreatedAt,
			&order.UpdatedAt,
			&order.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
