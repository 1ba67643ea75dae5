package bootstrap

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/flowerbot/core/config"
	coredatabase "github.com/m3rciful/flowerbot/core/database"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunSkipDatabase(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Config:       &coreconfig.Config{},
		SkipDatabase: true,
		LoggerInit:   noLogger,
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			t.Fatal("connect must not be called")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.DB != nil || res.Close() != nil {
		t.Fatalf("unexpected db: %+v", res)
	}
}

func TestRunMigratesAndClosesOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	mock.ExpectClose()

	files := fstest.MapFS{"000001_x.up.sql": {Data: []byte("SELECT 1")}}
	var migrated fs.FS
	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Migrations: files,
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			return sqlx.NewDb(db, "postgres"), nil
		},
		Migrate: func(_ context.Context, _ coredatabase.Config, src fs.FS) error {
			migrated = src
			return errors.New("dirty database")
		},
	})
	if err == nil {
		t.Fatal("expected migration error")
	}
	if migrated == nil {
		t.Fatal("migrations not passed through")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("db not closed: %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestRunSeedersStopsOnError(t *testing.T) {
	var order []string
	step := func(name string, err error) NamedSeeder {
		return NamedSeeder{Name: name, Seeder: SeederFunc(func(context.Context) error {
			order = append(order, name)
			return err
		})}
	}
	err := RunSeeders(context.Background(), step("cities", nil), step("terms", errors.New("boom")), step("never", nil))
	if err == nil || len(order) != 2 {
		t.Fatalf("err=%v order=%v", err, order)
	}
}
