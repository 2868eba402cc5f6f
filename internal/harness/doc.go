// Package harness runs conformance scenarios against the ordering engine.
//
// A scenario seeds a fresh in-memory store, drives the real engine through a
// flow of named operations, checks each outcome and then asserts on the
// trace and the final ledger rows.
//
// # Scenario Format
//
//	name: reject_restores_resources
//	description: "What this scenario validates"
//	catalog: ../catalog/canteen.cue   # optional CUE catalog
//	admins: [cashier]
//	setup:
//	  - action: menu.upsert
//	    args: { id: A, name: Adobo, category: meals, unit_price: "40.00", stock: 3, active: true }
//	flow:
//	  - invoke: reservation.create
//	    as: stu-001
//	    args: { lines: [{ menu_item_id: A, qty: 2 }], pickup_slot: "11:30" }
//	    save: r1
//	    expect:
//	      case: ok
//	      result: { total: "80.00" }
//	  - invoke: reservation.setStatus
//	    as: cashier
//	    args: { id: $r1, status: rejected }
//	assertions:
//	  - type: final_state
//	    table: menu_items
//	    where: { id: A }
//	    expect: { stock: 3 }
//	  - type: invariants
//
// # Operations
//
// menu.upsert, menu.adjustStock, menu.delete, wallet.credit (opening
// balance), wallet.balance, reservation.create, reservation.setStatus,
// reservation.bulkSetStatus, reservation.get, topup.submit, topup.decide,
// reconcile.
//
// The completion case of an operation is "ok" or the domain error code it
// failed with (e.g. INSUFFICIENT_STOCK). Its result is a small summary of the
// returned record (ids, statuses, money as two-place strings).
//
// # Assertion Types
//
//   - trace_contains: an operation appears in the trace with matching args
//   - trace_order: operations appear in the given order
//   - trace_count: an operation appears exactly N times
//   - final_state: one row of a ledger table has the expected column values
//   - invariants: the stored ledgers pass the integrity checks
//
// trace_contains and trace_count take an optional case to count only steps
// that ended with that outcome:
//
//	- type: trace_count
//	  action: topup.decide
//	  case: ok
//	  count: 1
//
// final_state reads only the canteen's ledger tables (menu_items, wallets,
// wallet_entries, stock_movements, reservations, reservation_lines,
// reservation_events, topups, integrity_alerts). A money column may be named
// without its _cents suffix and compared as an amount: balance: "75.25"
// checks balance_cents = 7525.
//
// # Deterministic Testing
//
// Every run uses testutil.DeterministicClock and a SequenceGenerator, so ids
// are id-0001, id-0002, ... in creation order and traces are byte-identical
// across runs. Snapshot renders them as canonical JSON for golden files.
package harness
