// Package storage defines the persistence interfaces and row types for the
// OAuth core: registered clients, authorization codes, access and refresh
// tokens, and per-(user, client) consent grants.
//
// The relational store is the sole source of truth. Credential material is
// persisted only as SHA-256 hashes (bcrypt for client secrets) and looked up
// by re-hashing the presented value; raw secrets never reach storage.
package storage
