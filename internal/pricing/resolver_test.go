package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/store"
)

type fakeMenu map[string]domain.MenuItem

func (m fakeMenu) GetMenuItem(_ context.Context, id string) (domain.MenuItem, error) {
	item, ok := m[id]
	if !ok {
		return domain.MenuItem{}, fmt.Errorf("get menu item %s: %w", id, store.ErrNotFound)
	}
	return item, nil
}

func menu() fakeMenu {
	return fakeMenu{
		"adobo": {ID: "adobo", Name: "Adobo", UnitPrice: decimal.RequireFromString("40"), Stock: 3, Active: true},
		"turon": {ID: "turon", Name: "Turon", UnitPrice: decimal.RequireFromString("12.50"), Stock: 0, Active: false},
	}
}

func TestResolve_SnapshotsAndTotals(t *testing.T) {
	r := NewResolver(menu())

	lines, total, err := r.Resolve(context.Background(), []domain.CartLine{
		{MenuItemID: "adobo", Quantity: 2},
		{MenuItemID: "turon", Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Adobo", lines[0].Name)
	assert.Equal(t, "40.00", domain.FormatMoney(lines[0].UnitPrice))
	assert.Equal(t, "117.50", domain.FormatMoney(total))
}

func TestResolve_InactiveItemIsPurchasable(t *testing.T) {
	r := NewResolver(menu())

	lines, _, err := r.Resolve(context.Background(), []domain.CartLine{{MenuItemID: "turon", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, "turon", lines[0].MenuItemID)
}

func TestResolve_ItemNotFound(t *testing.T) {
	r := NewResolver(menu())

	_, _, err := r.Resolve(context.Background(), []domain.CartLine{
		{MenuItemID: "adobo", Quantity: 1},
		{MenuItemID: "ghost", Quantity: 1},
	})
	require.Error(t, err)

	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.ErrCodeItemNotFound, de.Code)
	assert.Equal(t, "ghost", de.ItemID)
}

func TestNormalizeCart(t *testing.T) {
	tests := []struct {
		name    string
		cart    []domain.CartLine
		want    []domain.CartLine
		errCode domain.ErrorCode
	}{
		{
			name:    "empty",
			cart:    nil,
			errCode: domain.ErrCodeInvalidInput,
		},
		{
			name:    "zero quantity",
			cart:    []domain.CartLine{{MenuItemID: "adobo", Quantity: 0}},
			errCode: domain.ErrCodeInvalidQuantity,
		},
		{
			name:    "negative quantity",
			cart:    []domain.CartLine{{MenuItemID: "adobo", Quantity: -2}},
			errCode: domain.ErrCodeInvalidQuantity,
		},
		{
			name:    "blank id",
			cart:    []domain.CartLine{{MenuItemID: "  ", Quantity: 1}},
			errCode: domain.ErrCodeInvalidInput,
		},
		{
			name:    "merged over limit",
			cart:    []domain.CartLine{{MenuItemID: "adobo", Quantity: 60}, {MenuItemID: "adobo", Quantity: 41}},
			errCode: domain.ErrCodeInvalidQuantity,
		},
		{
			name:    "single line over limit",
			cart:    []domain.CartLine{{MenuItemID: "adobo", Quantity: MaxQuantity + 1}},
			errCode: domain.ErrCodeInvalidQuantity,
		},
		{
			name:    "huge duplicates do not wrap",
			cart:    []domain.CartLine{{MenuItemID: "adobo", Quantity: math.MaxInt}, {MenuItemID: "adobo", Quantity: math.MaxInt}},
			errCode: domain.ErrCodeInvalidQuantity,
		},
		{
			name: "merged exactly at limit",
			cart: []domain.CartLine{{MenuItemID: "adobo", Quantity: 60}, {MenuItemID: "adobo", Quantity: 40}},
			want: []domain.CartLine{{MenuItemID: "adobo", Quantity: MaxQuantity}},
		},
		{
			name: "duplicates merged in first-seen order",
			cart: []domain.CartLine{
				{MenuItemID: "rice", Quantity: 1},
				{MenuItemID: "adobo", Quantity: 2},
				{MenuItemID: "rice", Quantity: 2},
			},
			want: []domain.CartLine{
				{MenuItemID: "rice", Quantity: 3},
				{MenuItemID: "adobo", Quantity: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCart(tt.cart)
			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, domain.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeCart_LimitNamesItem(t *testing.T) {
	_, err := NormalizeCart([]domain.CartLine{
		{MenuItemID: "turon", Quantity: 1},
		{MenuItemID: "adobo", Quantity: math.MaxInt},
		{MenuItemID: "adobo", Quantity: math.MaxInt},
	})
	require.Error(t, err)

	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "adobo", de.ItemID)
	assert.Contains(t, de.Message, "exceeds the limit of 100")
}
