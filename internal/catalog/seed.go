package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/store"
)

// OpeningReference is the wallet journal reference of a user's opening
// balance. Each user gets at most one opening credit.
func OpeningReference(userID string) string {
	return "opening:" + userID
}

// Crediter applies wallet credits.
type Crediter interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, reason, reference string) (bool, error)
}

// SeedOptions controls how a catalog is applied to an existing store.
type SeedOptions struct {
	// ResetStock sets existing items' stock to the catalog value. Without it
	// only newly created items take the catalog stock.
	ResetStock bool
}

// SeedReport counts what a Seed call changed.
type SeedReport struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Restock  int `json:"restocked"`
	Credited int `json:"credited"`
	Skipped  int `json:"skipped"`
}

// Seed applies a catalog: upserts every item and credits every opening
// balance once. Re-running the same catalog is safe; opening balances that
// were already credited are skipped.
func Seed(ctx context.Context, cat *Catalog, menu *Menu, wallet Crediter, actor domain.Actor, opts SeedOptions) (SeedReport, error) {
	var report SeedReport

	for _, in := range cat.Items {
		_, err := menu.Get(ctx, in.ID)
		exists := err == nil
		if err != nil && !domain.IsCode(err, domain.ErrCodeNotFound) {
			return report, fmt.Errorf("seed item %s: %w", in.ID, err)
		}

		if _, err := menu.Upsert(ctx, in, actor); err != nil {
			return report, fmt.Errorf("seed item %s: %w", in.ID, err)
		}
		if !exists {
			report.Created++
			continue
		}
		report.Updated++

		if opts.ResetStock {
			if _, err := menu.AdjustStock(ctx, in.ID, in.Stock, actor); err != nil {
				return report, fmt.Errorf("seed item %s: %w", in.ID, err)
			}
			report.Restock++
		}
	}

	for _, b := range cat.Balances {
		if b.Amount.IsZero() {
			report.Skipped++
			continue
		}
		applied, err := wallet.Credit(ctx, b.UserID, b.Amount, store.EntryOpening, OpeningReference(b.UserID))
		if err != nil {
			return report, fmt.Errorf("seed wallet %s: %w", b.UserID, err)
		}
		if applied {
			report.Credited++
		} else {
			report.Skipped++
		}
	}

	menu.logger.Info("catalog seeded",
		"created", report.Created,
		"updated", report.Updated,
		"restocked", report.Restock,
		"credited", report.Credited,
		"skipped", report.Skipped,
	)
	return report, nil
}

// LoadAndSeed loads path and seeds it.
func LoadAndSeed(ctx context.Context, path string, menu *Menu, wallet Crediter, actor domain.Actor, opts SeedOptions) (SeedReport, error) {
	if path == "" {
		return SeedReport{}, errors.New("seed: no catalog path given")
	}
	cat, err := Load(path)
	if err != nil {
		return SeedReport{}, err
	}
	return Seed(ctx, cat, menu, wallet, actor, opts)
}
