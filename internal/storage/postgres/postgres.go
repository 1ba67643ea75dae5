// Package postgres implements the storage ports on PostgreSQL through sqlx.
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

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store implements storage.Store on a shared *sqlx.DB pool.
type Store struct {
	db *sqlx.DB
}

// New wraps an open pool. The caller keeps ownership of the schema.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Catalog() storage.Catalog   { return catalogRepo{db: s.db} }
func (s *Store) Sessions() storage.Sessions { return sessionRepo{db: s.db} }
func (s *Store) Orders() storage.Orders     { return orderRepo{db: s.db} }
func (s *Store) Users() storage.Users       { return userRepo{db: s.db} }
func (s *Store) Terms() storage.Terms       { return termsRepo{db: s.db} }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Commit writes the order, feedback and session change in one transaction.
// An order whose checkout key already exists is returned as a replay.
func (s *Store) Commit(ctx context.Context, c storage.Commit) (res storage.CommitResult, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("postgres: begin commit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if c.Order != nil {
		order, replayed, oerr := insertOrder(ctx, tx, *c.Order)
		if oerr != nil {
			return res, oerr
		}
		res.Order = &order
		res.Replayed = replayed
		c.Session.LastOrderID = order.ID
	}
	if c.Feedback != nil {
		fb, ferr := insertFeedback(ctx, tx, *c.Feedback)
		if ferr != nil {
			return res, ferr
		}
		res.Feedback = &fb
	}
	if c.DropSession {
		if _, err = tx.ExecContext(ctx, deleteSessionSQL, c.Session.UserID); err != nil {
			return res, fmt.Errorf("postgres: drop session: %w", err)
		}
	} else if err = upsertSession(ctx, tx, c.Session); err != nil {
		return res, err
	}

	if err = tx.Commit(); err != nil {
		return res, fmt.Errorf("postgres: commit: %w", err)
	}
	return res, nil
}

// translate maps driver errors onto the storage sentinels.
func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case uniqueViolation:
			return storage.ErrConflict
		case foreignKeyViolation:
			return storage.ErrNotFound
		}
	}
	return err
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func affectedOne(r sql.Result) error {
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

var _ storage.Store = (*Store)(nil)

// productColumns is shared by every products SELECT/RETURNING.
const productColumns = `id, city_id, name, description, photo, price, available, version, updated_at`

func scanProducts(rows *sqlx.Rows) ([]model.Product, error) {
	defer rows.Close()
	var out []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.StructScan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
