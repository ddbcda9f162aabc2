// Package storage provides audit record persistence backends: an in-memory
// store for tests and a SQLite store for durable audit trails.
package storage
