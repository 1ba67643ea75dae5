package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/flowerbot/core/logger"
)

// Seeder loads reference data into a storage implementation.
type Seeder interface {
	Seed(ctx context.Context) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc func(ctx context.Context) error

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context) error {
	return f(ctx)
}

// NamedSeeder labels a seeder for logs.
type NamedSeeder struct {
	Name   string
	Seeder Seeder
}

// RunSeeders runs seeders in order and stops at the first failure.
func RunSeeders(ctx context.Context, seeders ...NamedSeeder) error {
	for _, s := range seeders {
		if s.Seeder == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Seeder.Seed(ctx); err != nil {
			logger.Error(ctx, "db.seed", "seed",
				slog.String("status", "fail"),
				slog.String("name", s.Name),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("seed %s: %w", s.Name, err)
		}
		logger.Debug(ctx, "db.seed", "seed",
			slog.String("status", "ok"),
			slog.String("name", s.Name),
		)
	}
	return nil
}
