// Package database stores the rotation history in SQLite.
//
// Every completed rotation is inserted once and never updated. Rows are
// chained: each row stores the hash of the previous one, and its own hash
// covers that value plus its columns, so VerifyChain detects edited or
// deleted rows.
//
// modernc.org/sqlite is used because it needs no cgo, and the history is a
// single file next to the audit CSV.
package database
