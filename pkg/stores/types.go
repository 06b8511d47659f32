package stores

import (
	"context"
	"database/sql"
	"time"
)

// Entry is one root key of a data store with its JSON encoded value.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"` // JSON document
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for lookup data persistence
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Entry operations
	Put(ctx context.Context, key string, value any, source string) error
	Get(ctx context.Context, key string) (any, bool, error)
	GetEntry(ctx context.Context, key string) (*Entry, error)
	ListEntries(ctx context.Context, limit, offset int) ([]*Entry, error)
	Delete(ctx context.Context, key string) error
	Import(ctx context.Context, data map[string]any, source string) (int, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
