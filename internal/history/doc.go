// Package history keeps an optional SQLite ledger of conversion attempts.
//
// Only finished attempts are recorded (pair, outcome, file name, timing).
// Session state is never stored here; a restart always begins with an empty
// session store.
package history
