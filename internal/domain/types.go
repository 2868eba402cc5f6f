package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MenuItem is a purchasable catalog entry.
// Active controls visibility only; an inactive item with stock can still be ordered.
type MenuItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  Category        `json:"category"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int             `json:"stock"`
	Active    bool            `json:"active"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Wallet is a student's prepaid balance.
type Wallet struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

// CartLine is one requested menu item in a create request.
type CartLine struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"qty"`
}

// LineItem is a priced snapshot of a cart line, frozen at creation.
type LineItem struct {
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
}

// Subtotal returns UnitPrice * Quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// TotalOf sums the subtotals of lines.
func TotalOf(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Reservation is a priced, stock-committed order. Only Status and UpdatedAt change after creation.
type Reservation struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	LineItems  []LineItem      `json:"line_items"`
	Total      decimal.Decimal `json:"total"`
	PickupSlot string          `json:"pickup_slot"`
	Note       string          `json:"note,omitempty"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TotalConsistent reports whether Total still equals the sum of the line snapshots.
func (r *Reservation) TotalConsistent() bool {
	return r.Total.Equal(TotalOf(r.LineItems))
}

// ReservationEvent is one entry of a reservation's audit trail.
type ReservationEvent struct {
	ReservationID string    `json:"reservation_id"`
	From          Status    `json:"from,omitempty"`
	To            Status    `json:"to"`
	Actor         string    `json:"actor"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}

// Topup is a student-submitted, admin-verified request to credit a wallet.
type Topup struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Provider       Provider        `json:"provider"`
	ProofReference string          `json:"proof_reference"`
	Status         TopupStatus     `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	DecidedBy      string          `json:"decided_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	DecidedAt      *time.Time      `json:"decided_at,omitempty"`
}

// BulkResult is the per-id outcome of a bulk status change.
type BulkResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// IntegrityAlert records a detected invariant violation or a dropped compensation.
type IntegrityAlert struct {
	ID      int64     `json:"id"`
	Kind    string    `json:"kind"`
	Subject string    `json:"subject"`
	Detail  string    `json:"detail"`
	At      time.Time `json:"at"`
}

// Actor is the authenticated caller of an operation, as asserted by the auth
// collaborator. The core trusts it and does no authentication itself.
type Actor struct {
	UserID string `json:"user_id"`
	Admin  bool   `json:"admin"`
}

// CanRead reports whether the actor may read a record owned by ownerID.
func (a Actor) CanRead(ownerID string) bool {
	return a.Admin || a.UserID == ownerID
}
