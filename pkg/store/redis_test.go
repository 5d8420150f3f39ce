package store

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestLoadRedisTLSConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("REDIS_TLS_INSECURE", "true")
	t.Setenv("REDIS_ALLOW_INSECURE_TLS", "true")
	t.Setenv("REDIS_TLS_SERVER_NAME", "redis.internal")
	t.Setenv("REDIS_TLS_CA_CERT_FILE", "")

	cfg, err := loadRedisTLSConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected tls config error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected tls config")
	}
	if !cfg.InsecureSkipVerify {
		t.Fatal("expected insecure skip verify to be set")
	}
	if cfg.ServerName != "redis.internal" {
		t.Fatalf("expected server name redis.internal, got %q", cfg.ServerName)
	}
}

func TestLoadRedisTLSConfigDisabled(t *testing.T) {
	t.Setenv("REDIS_TLS", "")
	cfg, err := loadRedisTLSConfigFromEnv()
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config when REDIS_TLS is unset, got %v %v", cfg, err)
	}
}

func TestLoadRedisTLSConfigInsecureGuard(t *testing.T) {
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("REDIS_TLS_INSECURE", "true")
	t.Setenv("REDIS_ALLOW_INSECURE_TLS", "false")
	if _, err := loadRedisTLSConfigFromEnv(); err == nil {
		t.Fatal("expected insecure tls guard error")
	}
}

func TestLoadRedisTLSConfigMissingCA(t *testing.T) {
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("REDIS_TLS_INSECURE", "")
	t.Setenv("REDIS_TLS_CA_CERT_FILE", "/tmp/non-existent-ca.pem")
	if _, err := loadRedisTLSConfigFromEnv(); err == nil {
		t.Fatal("expected missing CA file error")
	}
}

func TestNewRedisRejectsInsecureWhenRequired(t *testing.T) {
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	t.Setenv("REDIS_DB", "not-int")
	t.Setenv("REDIS_REQUIRE_TLS", "true")
	t.Setenv("REDIS_TLS", "false")
	client, err := NewRedis(context.Background())
	if err == nil {
		if client != nil {
			client.Close()
		}
		t.Fatal("expected tls requirement error")
	}
	if !strings.Contains(err.Error(), "REDIS_REQUIRE_TLS") {
		t.Fatalf("expected REDIS_REQUIRE_TLS error, got %v", err)
	}
}

func TestNewRedisConnects(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	defer mr.Close()

	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("REDIS_DB", "0")
	t.Setenv("REDIS_REQUIRE_TLS", "")
	t.Setenv("REDIS_TLS", "")

	client, err := NewRedis(context.Background())
	if err != nil {
		t.Fatalf("expected connection to miniredis, got %v", err)
	}
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}
