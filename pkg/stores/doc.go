// Package stores provides the SQLite data store behind the sqlite_lookup_key
// backend. Each row holds one root key and its value as a JSON document.
// Databases are created and migrated with embedded golang-migrate
// migrations and run in WAL mode.
package stores
