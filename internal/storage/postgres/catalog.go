package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/flowerbot/internal/model"
)

type catalogRepo struct {
	db *sqlx.DB
}

func (r catalogRepo) ListCities(ctx context.Context) ([]model.City, error) {
	var out []model.City
	if err := r.db.SelectContext(ctx, &out, `SELECT id, name FROM cities ORDER BY id`); err != nil {
		return nil, fmt.Errorf("postgres: list cities: %w", err)
	}
	return out, nil
}

func (r catalogRepo) GetCity(ctx context.Context, id int64) (model.City, error) {
	var c model.City
	if err := r.db.GetContext(ctx, &c, `SELECT id, name FROM cities WHERE id = $1`, id); err != nil {
		return c, fmt.Errorf("postgres: get city %d: %w", id, translate(err))
	}
	return c, nil
}

func (r catalogRepo) ListProducts(ctx context.Context, cityID int64) ([]model.Product, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE city_id = $1 ORDER BY id`, cityID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list products: %w", err)
	}
	out, err := scanProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan products: %w", err)
	}
	return out, nil
}

func (r catalogRepo) GetProduct(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	if err := r.db.GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE id = $1`, id); err != nil {
		return p, fmt.Errorf("postgres: get product %d: %w", id, translate(err))
	}
	return p, nil
}

func (r catalogRepo) CreateCity(ctx context.Context, name string) (model.City, error) {
	var c model.City
	err := r.db.GetContext(ctx, &c, `INSERT INTO cities (name) VALUES ($1) RETURNING id, name`, name)
	if err != nil {
		return c, fmt.Errorf("postgres: create city: %w", translate(err))
	}
	return c, nil
}

func (r catalogRepo) RenameCity(ctx context.Context, id int64, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE cities SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("postgres: rename city: %w", translate(err))
	}
	if err := affectedOne(res); err != nil {
		return fmt.Errorf("postgres: rename city %d: %w", id, err)
	}
	return nil
}

func (r catalogRepo) DeleteCity(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete city: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return fmt.Errorf("postgres: delete city %d: %w", id, err)
	}
	return nil
}

func (r catalogRepo) CreateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	var out model.Product
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO products (city_id, name, description, photo, price, available)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+productColumns,
		p.CityID, p.Name, p.Description, p.Photo, p.Price, p.Available)
	if err != nil {
		return out, fmt.Errorf("postgres: create product: %w", translate(err))
	}
	return out, nil
}

func (r catalogRepo) UpdateProduct(ctx context.Context, id int64, patch model.ProductPatch) (model.Product, error) {
	var out model.Product
	err := r.db.GetContext(ctx, &out, `
		UPDATE products SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			photo = COALESCE($4, photo),
			price = COALESCE($5, price),
			available = COALESCE($6, available),
			version = version + 1,
			updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		id, patch.Name, patch.Description, patch.Photo, patch.Price, patch.Available)
	if err != nil {
		return out, fmt.Errorf("postgres: update product %d: %w", id, translate(err))
	}
	return out, nil
}

func (r catalogRepo) DeleteProduct(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete product: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return fmt.Errorf("postgres: delete product %d: %w", id, err)
	}
	return nil
}

func (r catalogRepo) CopyProducts(ctx context.Context, from, to int64) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO products (city_id, name, description, photo, price, available)
		SELECT $2, name, description, photo, price, available
		FROM products WHERE city_id = $1 ORDER BY id`, from, to)
	if err != nil {
		return 0, fmt.Errorf("postgres: copy products: %w", translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: copy products: %w", err)
	}
	return int(n), nil
}
