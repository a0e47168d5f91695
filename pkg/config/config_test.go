package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "postgres" {
		t.Errorf("default backend = %q", cfg.Store.Backend)
	}
	if cfg.Dedup.BloomCapacity != 1_000_000 || cfg.Dedup.FalsePositiveRate != 0.01 {
		t.Errorf("default bloom sizing = %d/%g", cfg.Dedup.BloomCapacity, cfg.Dedup.FalsePositiveRate)
	}
	if !cfg.Cleanup.DryRun {
		t.Error("cleanup must default to dry run")
	}
	if cfg.Redis.URLSetTTL != 7*24*time.Hour {
		t.Errorf("default url set ttl = %s", cfg.Redis.URLSetTTL)
	}
	if cfg.Kafka.Topics.CrawlCandidates != "crawl-candidates" {
		t.Errorf("default candidates topic = %q", cfg.Kafka.Topics.CrawlCandidates)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
store:
  backend: mongo
  opTimeout: 3s
dedup:
  bloomCapacity: 5000
cleanup:
  strategy: longest_content
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "mongo" {
		t.Errorf("backend = %q, want mongo", cfg.Store.Backend)
	}
	if cfg.Store.OpTimeout != 3*time.Second {
		t.Errorf("opTimeout = %s, want 3s", cfg.Store.OpTimeout)
	}
	if cfg.Dedup.BloomCapacity != 5000 {
		t.Errorf("bloomCapacity = %d, want 5000", cfg.Dedup.BloomCapacity)
	}
	if cfg.Cleanup.Strategy != "longest_content" {
		t.Errorf("strategy = %q", cfg.Cleanup.Strategy)
	}
	// Values absent from the file keep their defaults.
	if cfg.Metrics.Port != 9090 {
		t.Errorf("metrics port = %d, want default 9090", cfg.Metrics.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("want error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DD_STORE_BACKEND", "mongo")
	t.Setenv("DD_POSTGRES_PORT", "5544")
	t.Setenv("DD_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("DD_CLEANUP_DRY_RUN", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "mongo" {
		t.Errorf("backend = %q, want mongo", cfg.Store.Backend)
	}
	if cfg.Store.Postgres.Port != 5544 {
		t.Errorf("postgres port = %d, want 5544", cfg.Store.Postgres.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Cleanup.DryRun {
		t.Error("dry run override not applied")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, Database: "crawlstore",
		User: "u", Password: "p", SSLMode: "disable",
	}
	want := "host=db port=5432 user=u password=p dbname=crawlstore sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
