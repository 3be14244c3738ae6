// Package store defines the [Store] interface for quota counter backends
// and provides these implementations:
//
//   - [MemoryStore]: fast, in-memory counters that are lost on restart.
//   - [SQLiteStore]: persistent counters backed by a SQLite database.
//   - [TieredStore]: a short-lived memory cache in front of another store.
//
// A Redis implementation lives in the redis subpackage. [SQLiteEventStore]
// keeps raw usage events that a quota reset clears.
//
// Custom backends can be created by implementing the [Store] interface, and
// optionally [Consumer] for atomic multi-counter updates.
package store
