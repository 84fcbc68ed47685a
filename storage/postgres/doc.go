// Package postgres implements the storage interfaces on PostgreSQL using
// pgx. Authorization-code consumption is a single conditional UPDATE with
// RETURNING, and refresh-token rotation runs inside a real database
// transaction via WithTransaction.
package postgres
