// Package store provides SQLite-backed durable storage for the canteen.
//
// The store owns every mutable resource of the ordering core:
//   - Menu items: catalog fields plus the stock counter
//   - Wallets: one balance per user, created on first credit
//   - Reservations: header, frozen line snapshots, status audit trail
//   - Topups: submitted requests and their single admin decision
//   - Integrity alerts: dropped compensations and invariant breaches
//
// # Critical Patterns
//
// Conditional updates
//   - Stock and balance are decremented with UPDATE ... WHERE value >= amount
//   - Never read-modify-write in Go; RowsAffected decides the outcome
//   - CHECK (stock >= 0) and CHECK (balance_cents >= 0) back the rule up
//
// Journaled, idempotent movements
//   - stock_movements UNIQUE(reason, reference, menu_item_id)
//   - wallet_entries UNIQUE(reason, reference)
//   - The journal row and the counter change commit together, so a retried
//     release or refund whose outcome was unknown applies at most once
//   - Reserving or debiting under a reference already used returns ErrDuplicate
//
// Compare-and-set transitions
//   - Reservation status and topup decisions update only WHERE status = expected
//   - A lost race returns ErrStale and writes nothing
//
// Money is stored as integer cents.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection; a Store method never queries while a cursor is open
package store
