package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/flowerbot/core/bootstrap"
	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/internal/storage"
)

const componentSeed = "db.seed"

// CitySeeder creates the configured cities when the catalog has none.
func CitySeeder(catalog storage.Catalog, names []string) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context) error {
		if len(names) == 0 {
			return nil
		}
		existing, err := catalog.ListCities(ctx)
		if err != nil {
			return fmt.Errorf("list cities: %w", err)
		}
		if len(existing) > 0 {
			return nil
		}
		created := 0
		for _, raw := range names {
			name := strings.TrimSpace(raw)
			if name == "" {
				continue
			}
			if _, err := catalog.CreateCity(ctx, name); err != nil {
				if errors.Is(err, storage.ErrConflict) {
					continue
				}
				return fmt.Errorf("create city %q: %w", name, err)
			}
			created++
		}
		logger.Info(ctx, componentSeed, "cities", slog.Int("count", created))
		return nil
	})
}

// TermsSeeder stores the configured terms unless terms already exist.
func TermsSeeder(terms storage.Terms, text string) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		current, err := terms.CurrentTerms(ctx)
		switch {
		case err == nil && strings.TrimSpace(current) != "":
			return nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("load terms: %w", err)
		}
		if err := terms.SetTerms(ctx, text); err != nil {
			return fmt.Errorf("store terms: %w", err)
		}
		logger.Info(ctx, componentSeed, "terms", slog.Int("count", len([]rune(text))))
		return nil
	})
}
