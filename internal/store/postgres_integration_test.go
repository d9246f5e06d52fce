//go:build integration

package store_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/raysh454/flipradar/internal/model"
	"github.com/raysh454/flipradar/internal/store"
	"github.com/raysh454/flipradar/internal/testutil"
)

// Run with: FLIPRADAR_TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/store/
func TestPostgresStore_RoundTrip(t *testing.T) {
	url := os.Getenv("FLIPRADAR_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FLIPRADAR_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := store.NewPostgresPool(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresPool: %v", err)
	}
	s, err := store.NewPostgresStore(ctx, pool, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer s.Close()

	if _, err := pool.Exec(ctx, `TRUNCATE purchases, opportunities`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	o := mustOpp(t, "pg-1", "Books", 10, 40, base)
	if err := s.Add(ctx, o); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, o); !errors.Is(err, model.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	got, err := s.List(ctx, model.Filter{Category: "BOOKS"})
	if err != nil || len(got) != 1 {
		t.Fatalf("List: %v (%d results)", err, len(got))
	}
	if _, err := s.RecordPurchase(ctx, "pg-1", model.Purchase{ApprovedAt: base}); err != nil {
		t.Fatalf("RecordPurchase: %v", err)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalPurchases != 1 || st.TotalOpportunities != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}
