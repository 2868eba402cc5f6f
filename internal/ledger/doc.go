// Package ledger owns the two numeric resources of the ordering core.
//
// Inventory reserves and releases menu item stock; Wallet debits and credits
// user balances. Both are thin typed wrappers over the store's conditional
// updates and add amount validation, logging and cache invalidation.
//
// Compensator runs the reversing half of a multi-step operation (release
// after a failed debit, refund on rejection, credit on topup approval).
// Every compensation is idempotent at the store level, so retrying one is
// always safe. One that cannot be applied escalates to an integrity alert.
package ledger
