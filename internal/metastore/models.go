package metastore

import (
	"context"
	"time"
)

// Record describes one issued code and the artifact it resolves to.
type Record struct {
	Code            string    `json:"code"`
	StorageLocation string    `json:"storage_location"`
	DisplayName     string    `json:"display_name"`
	OriginalName    string    `json:"original_name"`
	Category        string    `json:"category"`
	SizeBytes       int64     `json:"size_bytes"`
	SourceSizeBytes int64     `json:"source_size_bytes,omitempty"`
	Checksum        string    `json:"checksum,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at now.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Store is the durable code -> record mapping.
type Store interface {
	// Put registers a record. It returns ErrDuplicateCode if the code is taken.
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, code string) (Record, error)
	// Remove deletes and returns the record for code.
	Remove(ctx context.Context, code string) (Record, error)
	// List returns a snapshot of every record.
	List(ctx context.Context) ([]Record, error)
	Ping(ctx context.Context) error
	Close() error
}
