package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// Create persists the order and its items in a single transaction. Items are
// inserted sequentially, in submission order, so item ids follow that order.
// Readers outside the transaction see either the whole order or nothing.
func (r *Repo) Create(ctx context.Context, order *Order) (*Order, error) {
	if len(order.Items) == 0 {
		return nil, ErrNoValidItems
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// no-op after a successful commit; a failed rollback must
		// not mask the original error
		_ = tx.Rollback(ctx)
	}()

	var orderID int
	err = tx.QueryRow(
		ctx,
		`INSERT INTO orders (customer_name, table_no, note, status, total)
			VALUES ($1, $2, $3, $4, $5) RETURNING id;`,
		order.CustomerName, order.TableNo, order.Note, order.Status, order.Total,
	).Scan(&orderID)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.Exec(
			ctx,
			`INSERT INTO order_items (order_id, name, price, qty, image)
				VALUES ($1, $2, $3, $4, $5);`,
			orderID, item.Name, item.Price, item.Qty, item.Image,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item [%s]: %w", item.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return r.Get(ctx, orderID)
}

func (r *Repo) UpdateStatus(ctx context.Context, orderID int, status Status) (*Order, error) {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2;`,
		status, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrOrderNotFound
	}

	return r.Get(ctx, orderID)
}

func (r *Repo) Get(ctx context.Context, orderID int) (*Order, error) {
	var order Order
	err := r.db.QueryRow(
		ctx,
		`SELECT id, customer_name, table_no, note, status, total, created_at, updated_at
			FROM orders WHERE id = $1;`,
		orderID,
	).Scan(
		&order.ID, &order.CustomerName, &order.TableNo, &order.Note,
		&order.Status, &order.Total, &order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	order.Items, err = r.getItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// List returns all orders, newest first, items attached
func (r *Repo) List(ctx context.Context) ([]Order, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, customer_name, table_no, note, status, total, created_at, updated_at
			FROM orders ORDER BY id DESC;`,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var order Order
		if err := rows.Scan(
			&order.ID, &order.CustomerName, &order.TableNo, &order.Note,
			&order.Status, &order.Total, &order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].Items, err = r.getItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return orders, nil
}

// items come back in insertion order (ascending id)
func (r *Repo) getItems(ctx context.Context, orderID int) ([]OrderItem, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, order_id, name, price, qty, image
			FROM order_items WHERE order_id = $1 ORDER BY id ASC;`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.Name, &item.Price, &item.Qty, &item.Image,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
