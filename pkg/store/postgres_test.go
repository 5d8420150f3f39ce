package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestValidatePostgresTLS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"verify_full_allowed", "postgres://u:p@db:5432/x?sslmode=verify-full", false},
		{"verify_ca_allowed", "postgres://u:p@db:5432/x?sslmode=verify-ca", false},
		{"require_allowed", "postgres://u:p@db:5432/x?sslmode=require", false},
		{"disable_denied", "postgres://u:p@db:5432/x?sslmode=disable", true},
		{"prefer_denied", "postgres://u:p@db:5432/x?sslmode=prefer", true},
		{"missing_sslmode_denied", "postgres://u:p@db:5432/x", true},
		{"invalid_url_denied", "://bad", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validatePostgresTLS(tt.url)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error for %q", tt.url)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.url, err)
			}
		})
	}
}

func TestNewPostgresPoolRejectsInvalidInputs(t *testing.T) {
	t.Setenv("DATABASE_REQUIRE_TLS", "")
	t.Setenv("DATABASE_URL", "://bad")
	if _, err := NewPostgresPool(context.Background()); err == nil {
		t.Fatal("expected parse error for invalid dsn")
	}

	t.Setenv("DATABASE_REQUIRE_TLS", "true")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x?sslmode=disable")
	_, err := NewPostgresPool(context.Background())
	if err == nil {
		t.Fatal("expected tls enforcement error")
	}
	if !strings.Contains(err.Error(), "insecure") {
		t.Fatalf("expected insecure transport error, got %v", err)
	}
}

func TestRequiresSecureTransportVariants(t *testing.T) {
	for raw, want := range map[string]bool{"true": true, "1": true, "yes": true, "on": true, "off": false, "": false} {
		t.Setenv("TRANSPORT_REQ", raw)
		if got := requiresSecureTransport("TRANSPORT_REQ"); got != want {
			t.Fatalf("requiresSecureTransport(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestDefaultPostgresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_USER", "")
	t.Setenv("POSTGRES_PASSWORD", "")
	t.Setenv("DATABASE_HOST", "")
	t.Setenv("DATABASE_PORT", "not-a-port")
	t.Setenv("DATABASE_NAME", "")
	t.Setenv("DATABASE_SSLMODE", "")

	got := defaultPostgresURL()
	if got != "postgres://opportunities@localhost:5432/opportunities?sslmode=disable" {
		t.Fatalf("unexpected default dsn: %s", got)
	}

	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("DATABASE_PORT", "5433")
	got = defaultPostgresURL()
	if !strings.Contains(got, "opportunities:s3cret@db.internal:5433") {
		t.Fatalf("unexpected dsn with credentials: %s", got)
	}
}

func TestNewPostgresPoolRetryExhausted(t *testing.T) {
	origRetries := postgresConnectRetries
	origDelay := postgresRetryDelay
	origSleep := postgresSleep
	origNew := pgxPoolNewWithConfig
	defer func() {
		postgresConnectRetries = origRetries
		postgresRetryDelay = origDelay
		postgresSleep = origSleep
		pgxPoolNewWithConfig = origNew
	}()

	postgresConnectRetries = 2
	postgresRetryDelay = time.Millisecond
	slept := 0
	postgresSleep = func(d time.Duration) { slept++ }
	pgxPoolNewWithConfig = func(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
		return nil, errors.New("connect refused")
	}

	t.Setenv("DATABASE_REQUIRE_TLS", "")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/x?sslmode=disable")
	_, err := NewPostgresPool(context.Background())
	if err == nil || !strings.Contains(err.Error(), "retries exhausted") {
		t.Fatalf("expected exhausted retries error, got %v", err)
	}
	if slept != 2 {
		t.Fatalf("expected one sleep per retry, got %d", slept)
	}
}
