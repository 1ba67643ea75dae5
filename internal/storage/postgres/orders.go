package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/storage"
)

const orderColumns = `id, user_id, city_id, city_name, checkout_key, phone, area, comment, total, status, status_note, created_at, updated_at`

const (
	insertOrderSQL = `INSERT INTO orders (user_id, city_id, city_name, checkout_key, phone, area, comment, total, status, status_note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (checkout_key) DO NOTHING
		RETURNING ` + orderColumns
	insertItemsSQL = `INSERT INTO order_items (order_id, position, product_id, product_name, product_version, unit_price, quantity)
		VALUES (:order_id, :position, :product_id, :product_name, :product_version, :unit_price, :quantity)`
	selectItemsSQL = `SELECT order_id, position, product_id, product_name, product_version, unit_price, quantity
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`
)

type itemRow struct {
	OrderID  int64 `db:"order_id"`
	Position int   `db:"position"`
	model.LineItem
}

type orderRepo struct {
	db *sqlx.DB
}

func (r orderRepo) GetOrder(ctx context.Context, id int64) (model.Order, error) {
	return loadOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r orderRepo) FindByCheckoutKey(ctx context.Context, key string) (model.Order, error) {
	return loadOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE checkout_key = $1`, key)
}

func (r orderRepo) ListRecent(ctx context.Context, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var orders []model.Order
	err := r.db.SelectContext(ctx, &orders, `SELECT `+orderColumns+` FROM orders ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	if err := attachItems(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r orderRepo) UpdateStatus(ctx context.Context, id int64, from, to model.OrderStatus, note string) (model.Order, error) {
	var o model.Order
	err := r.db.GetContext(ctx, &o, `UPDATE orders SET status = $3, status_note = $4, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns, id, string(from), string(to), note)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the order is gone or someone moved it first.
		if _, gerr := r.GetOrder(ctx, id); gerr != nil {
			return model.Order{}, gerr
		}
		return model.Order{}, storage.ErrConflict
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("postgres: update order %d: %w", id, err)
	}
	orders := []model.Order{o}
	if err := attachItems(ctx, r.db, orders); err != nil {
		return model.Order{}, err
	}
	return orders[0], nil
}

func loadOrder(ctx context.Context, q sqlx.QueryerContext, query string, arg any) (model.Order, error) {
	var o model.Order
	if err := sqlx.GetContext(ctx, q, &o, query, arg); err != nil {
		return model.Order{}, fmt.Errorf("postgres: get order: %w", translate(err))
	}
	orders := []model.Order{o}
	if err := attachItems(ctx, q, orders); err != nil {
		return model.Order{}, err
	}
	return orders[0], nil
}

func attachItems(ctx context.Context, q sqlx.QueryerContext, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}
	var rows []itemRow
	if err := sqlx.SelectContext(ctx, q, &rows, selectItemsSQL, pq.Array(ids)); err != nil {
		return fmt.Errorf("postgres: load order items: %w", err)
	}
	for _, row := range rows {
		i := index[row.OrderID]
		orders[i].Items = append(orders[i].Items, row.LineItem)
	}
	return nil
}

// insertOrder stores the order and its items. When the checkout key is
// already taken the existing order is loaded and reported as replayed.
func insertOrder(ctx context.Context, tx *sqlx.Tx, o model.Order) (model.Order, bool, error) {
	var stored model.Order
	err := tx.GetContext(ctx, &stored, insertOrderSQL,
		o.UserID, o.CityID, o.CityName, o.CheckoutKey, o.Phone, o.Area, o.Comment, int64(o.Total), string(o.Status), o.StatusNote)
	if errors.Is(err, sql.ErrNoRows) {
		existing, lerr := loadOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE checkout_key = $1`, o.CheckoutKey)
		if lerr != nil {
			return model.Order{}, false, lerr
		}
		return existing, true, nil
	}
	if err != nil {
		return model.Order{}, false, fmt.Errorf("postgres: insert order: %w", err)
	}
	if len(o.Items) > 0 {
		rows := make([]itemRow, len(o.Items))
		for i, li := range o.Items {
			rows[i] = itemRow{OrderID: stored.ID, Position: i + 1, LineItem: li}
		}
		if _, err := tx.NamedExecContext(ctx, insertItemsSQL, rows); err != nil {
			return model.Order{}, false, fmt.Errorf("postgres: insert order items: %w", err)
		}
	}
	stored.Items = append([]model.LineItem(nil), o.Items...)
	return stored, false, nil
}
