package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

var testTime = time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedItem inserts an active meal with the given price and stock.
func seedItem(t *testing.T, s *Store, id, price string, stock int) {
	t.Helper()
	err := s.UpsertMenuItem(context.Background(), domain.MenuItem{
		ID:        id,
		Name:      id,
		Category:  domain.CategoryMeals,
		UnitPrice: decimal.RequireFromString(price),
		Stock:     stock,
		Active:    true,
		UpdatedAt: testTime,
	})
	if err != nil {
		t.Fatalf("UpsertMenuItem(%s) failed: %v", id, err)
	}
}

// stockOf returns the current stock of a menu item.
func stockOf(t *testing.T, s *Store, id string) int {
	t.Helper()
	item, err := s.GetMenuItem(context.Background(), id)
	if err != nil {
		t.Fatalf("GetMenuItem(%s) failed: %v", id, err)
	}
	return item.Stock
}

// balanceOf returns the wallet balance rendered with two decimals.
func balanceOf(t *testing.T, s *Store, userID string) string {
	t.Helper()
	w, err := s.GetWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetWallet(%s) failed: %v", userID, err)
	}
	return domain.FormatMoney(w.Balance)
}
