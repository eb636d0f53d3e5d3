// Package storage persists the three application documents (events,
// ledger logs, notification settings) as whole JSON blobs keyed by name,
// the way the original KV namespace held them.
//
// Writes are whole-document replaces; there are no partial updates and no
// cross-document transactions. Concurrent writers can race, which is an
// accepted limitation at single-user load.
package storage
