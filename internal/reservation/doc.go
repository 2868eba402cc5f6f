// Package reservation implements the reservation state machine.
//
//	(create) -> pending -> approved -> preparing -> ready -> claimed
//	               |          |
//	               +----------+--> rejected
//
// Stock is deducted and the wallet debited once, at creation. Rejection is
// the only path that hands them back, and it does so in full. Claimed and
// rejected are terminal. Only admins drive transitions; pending
// reservations do not expire.
package reservation
