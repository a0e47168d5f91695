// Package integration contains tests that exercise the store adapters and
// the shared cache against real backends.
//
// Prerequisites:
//   - PostgreSQL reachable (INT_POSTGRES_HOST, default localhost:5432,
//     database/user/password crawlstore/crawlstore/localdev)
//   - Redis reachable (INT_REDIS_ADDR, default localhost:6379)
//
// Tests skip when a backend is unavailable. Run with:
//
//	go test -v -timeout=60s ./test/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/websift/dedup-engine/internal/store"
	"github.com/websift/dedup-engine/pkg/config"
	"github.com/websift/dedup-engine/pkg/redis"
)

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func postgresConfig() config.StoreConfig {
	return config.StoreConfig{
		Backend:     "postgres",
		OpTimeout:   5 * time.Second,
		ScanTimeout: 30 * time.Second,
		ScanPage:    100,
		Postgres: config.PostgresConfig{
			Host:     envOrDefault("INT_POSTGRES_HOST", "localhost"),
			Port:     5432,
			Database: envOrDefault("INT_POSTGRES_DB", "crawlstore"),
			User:     envOrDefault("INT_POSTGRES_USER", "crawlstore"),
			Password: envOrDefault("INT_POSTGRES_PASSWORD", "localdev"),
			SSLMode:  "disable",
			Table:    fmt.Sprintf("documents_it_%d", time.Now().UnixNano()),
		},
	}
}

func openPostgres(t *testing.T) (store.Store, config.StoreConfig) {
	t.Helper()
	cfg := postgresConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := store.Open(ctx, cfg)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() {
		dropTable(cfg)
		st.Close(context.Background())
	})
	return st, cfg
}

// seed inserts fixtures directly, the way the crawl pipeline would.
func seed(t *testing.T, cfg config.StoreConfig) {
	t.Helper()
	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rows := []struct {
		id, url, text string
	}{
		{"it-1", "http://a.onion/", "first body"},
		{"it-2", "http://a.onion/", "first body"},
		{"it-3", "http://b.onion/", "second body"},
	}
	for _, r := range rows {
		_, err := db.Exec(
			fmt.Sprintf("INSERT INTO %s (id, url, text_content, ts) VALUES ($1, $2, $3, now())", cfg.Postgres.Table),
			r.id, r.url, r.text,
		)
		if err != nil {
			t.Fatal(err)
		}
	}
}

func dropTable(cfg config.StoreConfig) {
	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		return
	}
	defer db.Close()
	db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", cfg.Postgres.Table))
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	st, cfg := openPostgres(t)
	ctx := context.Background()

	count, err := st.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("fresh table holds %d documents", count)
	}

	seed(t, cfg)

	count, err = st.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	it, err := st.ScanAll(ctx, []string{store.FieldURL})
	if err != nil {
		t.Fatal(err)
	}
	docs, err := store.Drain(ctx, it)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("scanned %d documents, want 3", len(docs))
	}

	doc, err := st.LookupExact(ctx, store.FieldURL, "http://a.onion/")
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil || doc.ID != "it-1" {
		t.Fatalf("lookup returned %+v", doc)
	}
	missing, err := st.LookupExact(ctx, store.FieldURL, "http://nowhere.onion/")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatalf("lookup for absent url returned %+v", missing)
	}

	result, err := st.BulkDelete(ctx, []string{"it-1", "it-2", "never-existed"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded != 2 {
		t.Errorf("deleted %d, want 2", result.Succeeded)
	}
	count, _ = st.Count(ctx)
	if count != 1 {
		t.Errorf("count after delete = %d, want 1", count)
	}
}

func TestRedisSharedCache(t *testing.T) {
	cache, err := redis.NewClient(config.RedisConfig{
		Addr:     envOrDefault("INT_REDIS_ADDR", "localhost:6379"),
		PoolSize: 5,
	})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer cache.Close()
	ctx := context.Background()
	key := fmt.Sprintf("dedup:it:%d", time.Now().UnixNano())
	defer cache.Del(ctx, key)

	first, err := cache.SetAdd(ctx, key, "http://a.onion/")
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Error("first add reported member already present")
	}
	again, err := cache.SetAdd(ctx, key, "http://a.onion/")
	if err != nil {
		t.Fatal(err)
	}
	if again {
		t.Error("second add reported first insertion")
	}
	seen, err := cache.SetContains(ctx, key, "http://a.onion/")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("member not found after add")
	}
	size, err := cache.SetSize(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if size != 1 {
		t.Errorf("set size = %d, want 1", size)
	}
}
