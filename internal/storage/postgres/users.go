package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/storage"
)

const userColumns = `id, username, first_name, last_name, agreed_to_terms, registered_at`

type userRepo struct {
	db *sqlx.DB
}

func (r userRepo) Register(ctx context.Context, u model.User) (model.User, error) {
	var out model.User
	err := r.db.GetContext(ctx, &out, `INSERT INTO users (id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name
		RETURNING `+userColumns, u.ID, u.Username, u.FirstName, u.LastName)
	if err != nil {
		return model.User{}, fmt.Errorf("postgres: register user %d: %w", u.ID, err)
	}
	return out, nil
}

func (r userRepo) GetUserByTelegramID(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return model.User{}, fmt.Errorf("postgres: get user %d: %w", id, translate(err))
	}
	return u, nil
}

func (r userRepo) SetAgreedToTerms(ctx context.Context, id int64, agreed bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET agreed_to_terms = $2 WHERE id = $1`, id, agreed)
	if err != nil {
		return fmt.Errorf("postgres: set terms flag %d: %w", id, err)
	}
	return affectedOne(res)
}

type termsRepo struct {
	db *sqlx.DB
}

func (r termsRepo) CurrentTerms(ctx context.Context) (string, error) {
	var content string
	err := r.db.GetContext(ctx, &content, `SELECT content FROM terms ORDER BY id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres: current terms: %w", err)
	}
	return content, nil
}

func (r termsRepo) SetTerms(ctx context.Context, content string) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO terms (content) VALUES ($1)`, content); err != nil {
		return fmt.Errorf("postgres: set terms: %w", err)
	}
	return nil
}

func insertFeedback(ctx context.Context, tx *sqlx.Tx, fb model.Feedback) (model.Feedback, error) {
	var out struct {
		ID        int64         `db:"id"`
		UserID    int64         `db:"user_id"`
		OrderID   sql.NullInt64 `db:"order_id"`
		Text      string        `db:"text"`
		CreatedAt sql.NullTime  `db:"created_at"`
	}
	err := tx.GetContext(ctx, &out, `INSERT INTO feedback (user_id, order_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, order_id, text, created_at`, fb.UserID, nullableID(fb.OrderID), fb.Text)
	if err != nil {
		return model.Feedback{}, fmt.Errorf("postgres: insert feedback: %w", err)
	}
	return model.Feedback{
		ID:        out.ID,
		UserID:    out.UserID,
		OrderID:   out.OrderID.Int64,
		Text:      out.Text,
		CreatedAt: out.CreatedAt.Time,
	}, nil
}
