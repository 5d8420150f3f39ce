package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

type stubPool struct{}

func (stubPool) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}
func (stubPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (stubPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (stubPool) Close() {}

func noTelemetry(ctx context.Context, service string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

func noRedis(ctx context.Context) (*redis.Client, error) {
	return nil, errors.New("redis unavailable")
}

func TestRunServerRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	err := runServer(noTelemetry, func(ctx context.Context) (serverDBCloser, error) {
		return stubPool{}, nil
	}, noRedis, func(server *http.Server) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}
}

func TestRunServerPropagatesErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("KAFKA_BROKERS", "")

	t.Run("telemetry failure", func(t *testing.T) {
		err := runServer(func(ctx context.Context, service string) (func(context.Context) error, error) {
			return nil, errors.New("exporter down")
		}, nil, nil, nil)
		if err == nil || !strings.Contains(err.Error(), "otel") {
			t.Fatalf("expected otel error, got %v", err)
		}
	})

	t.Run("db failure", func(t *testing.T) {
		err := runServer(noTelemetry, func(ctx context.Context) (serverDBCloser, error) {
			return nil, errors.New("no database")
		}, noRedis, nil)
		if err == nil || !strings.Contains(err.Error(), "db") {
			t.Fatalf("expected db error, got %v", err)
		}
	})
}

func TestRunServerStartsWithDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("ADDR", "")

	var captured *http.Server
	err := runServer(noTelemetry, func(ctx context.Context) (serverDBCloser, error) {
		return stubPool{}, nil
	}, noRedis, func(server *http.Server) error {
		captured = server
		return nil
	})
	if err != nil {
		t.Fatalf("runServer failed: %v", err)
	}
	if captured == nil || captured.Addr != ":8080" {
		t.Fatalf("unexpected server: %+v", captured)
	}
	if captured.Handler == nil {
		t.Fatal("expected router to be attached")
	}
	if captured.ReadHeaderTimeout == 0 || captured.WriteTimeout == 0 {
		t.Fatalf("expected hardened timeouts, got %+v", captured)
	}
}
