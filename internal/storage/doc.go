// Package storage persists monitor configurations, recipient links,
// per-guild default servers and the activity log.
//
// Drivers:
//   - "sqlite": SQLite database file (default)
//   - "file":   JSON snapshot + JSON Lines activity log
//   - "memory": process-local, used by tests and dry runs
package storage
