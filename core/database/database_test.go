package database

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/m3rciful/flowerbot/migrations"
)

func TestConfigDSNAndURL(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "shop", Password: "p@ss word", Name: "flowers"}

	dsn := cfg.DSN()
	if !strings.Contains(dsn, "password='p@ss word'") || !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("dsn = %q", dsn)
	}
	u := cfg.URL()
	if !strings.HasPrefix(u, "postgres://shop:p%40ss%20word@db:5432/flowers?") || !strings.HasSuffix(u, "sslmode=disable") {
		t.Fatalf("url = %q", u)
	}
}

func TestListMigrationFilesSortsUpOnly(t *testing.T) {
	files := fstest.MapFS{
		"000002_users.up.sql":     {Data: []byte("-- up")},
		"000001_catalog.up.sql":   {Data: []byte("-- up")},
		"000001_catalog.down.sql": {Data: []byte("-- down")},
		"README.md":               {Data: []byte("notes")},
	}
	got := listMigrationFiles(files)
	if len(got) != 2 || got[0] != "000001_catalog.up.sql" || got[1] != "000002_users.up.sql" {
		t.Fatalf("files = %v", got)
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"000001_a.up.sql", "000002_b.up.sql", "000003_c.up.sql"}
	if got := selectApplied(files, 1, 3); len(got) != 2 || got[0] != "000002_b.up.sql" {
		t.Fatalf("applied = %v", got)
	}
	if got := selectApplied(files, 3, 3); got != nil {
		t.Fatalf("expected nothing applied, got %v", got)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups := listMigrationFiles(migrations.FS)
	if len(ups) == 0 {
		t.Fatal("no embedded migrations")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := migrations.FS.Open(down); err != nil {
			t.Fatalf("missing %s: %v", down, err)
		}
	}
}

func TestWaitForPostgresHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := WaitForPostgres(ctx, "host=127.0.0.1 port=1 sslmode=disable connect_timeout=1", time.Minute, time.Second)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("wait ignored cancellation")
	}
}

func TestRunMigrationsRejectsNilFS(t *testing.T) {
	if err := RunMigrations(context.Background(), Config{}, nil); err == nil {
		t.Fatal("expected error")
	}
}
