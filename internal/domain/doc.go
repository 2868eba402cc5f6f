// Package domain defines the canteen's records and the rules that are pure
// functions of them: the reservation transition table, topup outcomes, money
// arithmetic and the error taxonomy shared by every other package.
//
// # Money
//
// Amounts are shopspring/decimal values limited to two decimal places. The
// store persists them as integer cents so that conditional updates such as
// "debit only if balance >= amount" are exact.
//
// # Reservation lifecycle
//
//	pending -> approved -> preparing -> ready -> claimed
//	pending -> rejected
//	approved -> rejected
//
// rejected and claimed are terminal. Entering rejected releases stock and
// refunds the wallet; no other transition has a ledger side effect.
//
// # Errors
//
// Every expected failure is an *Error whose Code maps to one ErrorClass.
// Callers branch on CodeOf / ClassOf rather than on message text.
package domain
