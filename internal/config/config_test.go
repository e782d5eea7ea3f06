package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  port: 5432
  user: tableside
  password: secret
  database: tableside

rabbitmq:
  host: localhost
  port: 5672
  user: guest
  password: guest

server:
  port: 3000

billing:
  lookback_hours: 12
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("expected database.host localhost, got %q", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("expected database.port 5432, got %d", cfg.Database.Port)
	}
	if cfg.RabbitMQ.Port != 5672 {
		t.Errorf("expected rabbitmq.port 5672, got %d", cfg.RabbitMQ.Port)
	}
	if cfg.Billing.LookbackHours != 12 {
		t.Errorf("expected billing.lookback_hours 12, got %d", cfg.Billing.LookbackHours)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db
  port: 5432
  user: u
  password: p
  database: d

rabbitmq:
  host: mq
  port: 5672
  user: guest
  password: guest
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("expected default server.port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Billing.LookbackHours != 12 {
		t.Errorf("expected default lookback_hours 12, got %d", cfg.Billing.LookbackHours)
	}
}

func TestLoad_MissingHost(t *testing.T) {
	path := writeConfig(t, `
database:
  port: 5432
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing hosts, got nil")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
database:
  host: filehost
  port: 5432
  user: u
  password: p
  database: d

rabbitmq:
  host: mq
  port: 5672
  user: guest
  password: guest
`)

	t.Setenv("DATABASE_HOST", "envhost")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Host != "envhost" {
		t.Errorf("expected env override envhost, got %q", cfg.Database.Host)
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host: "db", Port: 5432, User: "u", Password: "p", Database: "tableside",
		},
	}
	want := "postgres://u:p@db:5432/tableside"
	if got := cfg.DatabaseURL(); got != want {
		t.Errorf("DatabaseURL() = %q, want %q", got, want)
	}
}
