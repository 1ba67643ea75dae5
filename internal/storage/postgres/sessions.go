package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/flowerbot/internal/model"
)

const (
	selectSessionSQL = `SELECT user_id, state, city_id, cart, checkout_key, phone, area, comment, last_order_id, updated_at
		FROM sessions WHERE user_id = $1`
	upsertSessionSQL = `INSERT INTO sessions (user_id, state, city_id, cart, checkout_key, phone, area, comment, last_order_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			state = EXCLUDED.state,
			city_id = EXCLUDED.city_id,
			cart = EXCLUDED.cart,
			checkout_key = EXCLUDED.checkout_key,
			phone = EXCLUDED.phone,
			area = EXCLUDED.area,
			comment = EXCLUDED.comment,
			last_order_id = EXCLUDED.last_order_id,
			updated_at = EXCLUDED.updated_at`
	deleteSessionSQL  = `DELETE FROM sessions WHERE user_id = $1`
	expireSessionsSQL = `DELETE FROM sessions WHERE updated_at < $1`
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sessionRow struct {
	UserID      int64     `db:"user_id"`
	State       string    `db:"state"`
	CityID      int64     `db:"city_id"`
	Cart        []byte    `db:"cart"`
	CheckoutKey string    `db:"checkout_key"`
	Phone       string    `db:"phone"`
	Area        string    `db:"area"`
	Comment     string    `db:"comment"`
	LastOrderID int64     `db:"last_order_id"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r sessionRow) toModel() (model.Session, error) {
	s := model.Session{
		UserID:      r.UserID,
		State:       model.State(r.State),
		CityID:      r.CityID,
		CheckoutKey: r.CheckoutKey,
		Phone:       r.Phone,
		Area:        r.Area,
		Comment:     r.Comment,
		LastOrderID: r.LastOrderID,
		LastUpdated: r.UpdatedAt,
	}
	if len(r.Cart) > 0 {
		if err := json.Unmarshal(r.Cart, &s.Cart); err != nil {
			return s, fmt.Errorf("decode cart: %w", err)
		}
	}
	if len(s.Cart) == 0 {
		s.Cart = nil
	}
	return s, nil
}

type sessionRepo struct {
	db *sqlx.DB
}

func (r sessionRepo) Get(ctx context.Context, userID int64) (model.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, selectSessionSQL, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewSession(userID), nil
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("postgres: get session %d: %w", userID, err)
	}
	s, err := row.toModel()
	if err != nil {
		return model.Session{}, fmt.Errorf("postgres: session %d: %w", userID, err)
	}
	return s, nil
}

func (r sessionRepo) Put(ctx context.Context, s model.Session) error {
	return upsertSession(ctx, r.db, s)
}

func (r sessionRepo) Delete(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, deleteSessionSQL, userID); err != nil {
		return fmt.Errorf("postgres: delete session %d: %w", userID, err)
	}
	return nil
}

func (r sessionRepo) Expire(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, expireSessionsSQL, olderThan)
	if err != nil {
		return 0, fmt.Errorf("postgres: expire sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: expire sessions: %w", err)
	}
	return int(n), nil
}

func (r sessionRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM sessions`); err != nil {
		return 0, fmt.Errorf("postgres: count sessions: %w", err)
	}
	return n, nil
}

func upsertSession(ctx context.Context, db execer, s model.Session) error {
	cart := s.Cart
	if cart == nil {
		cart = []model.CartLine{}
	}
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("postgres: encode cart: %w", err)
	}
	_, err = db.ExecContext(ctx, upsertSessionSQL,
		s.UserID, string(s.State), s.CityID, raw, s.CheckoutKey, s.Phone, s.Area, s.Comment, s.LastOrderID, s.LastUpdated)
	if err != nil {
		return fmt.Errorf("postgres: put session %d: %w", s.UserID, err)
	}
	return nil
}
