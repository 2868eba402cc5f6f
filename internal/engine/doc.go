// Package engine wires the canteen ordering core over one SQLite store.
//
// The engine owns no state of its own. It constructs the components in
// dependency order and hands them out:
//
//	store ─┬─ catalog.Menu (display cache, stock adjustments)
//	       ├─ ledger.Inventory ── invalidates Menu's cache
//	       ├─ ledger.Wallet
//	       ├─ ledger.Compensator (retry, escalate to integrity_alerts)
//	       ├─ reservation.Lifecycle (pricing, inventory, wallet, compensator)
//	       └─ topup.Lifecycle (wallet, compensator)
//
// CRITICAL PATTERNS:
//
// Saga, not distributed transaction:
// A reservation create is a sequence of atomic store transactions (reserve
// every line, debit, insert). A failed step triggers compensations through
// the Compensator, which retries transient failures and escalates the rest.
//
// Idempotent compensation:
// Releases, refunds and credits are journaled under the reservation or topup
// id. Re-running one is a no-op, which is what makes Reconcile safe to call
// at any time.
//
// Single writer:
// The store holds one connection, so every mutation is serialized. Stock and
// balance floors are enforced by conditional updates, not by the
// serialization.
package engine
