//go:build integration

package store

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"opportunities/pkg/models"
	"opportunities/pkg/query"
)

// Run with: go test -tags=integration -timeout 120s ./pkg/store/...
func TestOpportunitiesAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("opportunities_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("failed to terminate postgres container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer pool.Close()

	applySchema(ctx, t, pool)

	repo := NewOpportunities(pool)

	title := "Summer Internship"
	created, err := repo.Create(ctx, models.CreateInput{
		Title:       title,
		Description: "Three month placement",
		Category:    "internship",
		Tags:        []string{"go", "backend"},
	}, "u-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Category != models.CategoryInternship {
		t.Fatalf("category not normalized: %q", created.Category)
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Title != title || got.CreatedBy != "u-1" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := repo.Get(ctx, "00000000-0000-0000-0000-00000000dead"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// A second owner's record so ownership and filtering have something to bite on.
	other, err := repo.Create(ctx, models.CreateInput{
		Title:       "Design Scholarship",
		Description: "Tuition support",
		Category:    "SCHOLARSHIP",
	}, "u-2")
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}

	cat := models.CategoryInternship
	items, total, err := repo.List(ctx, query.Filter{Category: &cat, Page: 1, Limit: 10, SortField: "createdAt", SortDir: "desc"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != created.ID {
		t.Fatalf("category filter wrong: total=%d items=%d", total, len(items))
	}

	items, total, err = repo.List(ctx, query.Filter{Search: "design", Page: 1, Limit: 10, SortField: "createdAt", SortDir: "desc"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != other.ID {
		t.Fatalf("search wrong: total=%d items=%d", total, len(items))
	}

	remote := true
	if _, err := repo.Update(ctx, created.ID, "u-2", models.UpdateInput{IsRemote: &remote}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner update should be forbidden, got %v", err)
	}
	updated, err := repo.Update(ctx, created.ID, "u-1", models.UpdateInput{IsRemote: &remote})
	if err != nil {
		t.Fatalf("owner update failed: %v", err)
	}
	if !updated.IsRemote || updated.CreatedBy != "u-1" {
		t.Fatalf("update not applied: %+v", updated)
	}

	if err := repo.Delete(ctx, created.ID, "u-2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner delete should be forbidden, got %v", err)
	}
	if err := repo.Delete(ctx, created.ID, "u-1"); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
	if err := repo.Delete(ctx, created.ID, "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleting a gone record should be not found, got %v", err)
	}
}

func applySchema(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.sql"))
	if err != nil || len(files) == 0 {
		t.Fatalf("migrations missing: files=%d err=%v", len(files), err)
	}
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			t.Fatalf("apply %s: %v", f, err)
		}
	}
}
