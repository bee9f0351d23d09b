package share

import (
	"io"
	"time"

	"github.com/abduss/swiftshare/internal/metastore"
)

// Record is the persisted description of one issued code.
type Record = metastore.Record

// CreateInput carries an artifact to register.
type CreateInput struct {
	Source       io.Reader
	DisplayName  string
	OriginalName string
	Category     string
	// Size is the exact byte count of Source, or -1 when unknown.
	Size int64
	// SourceSize is the size of the upload the artifact was produced from.
	SourceSize int64
}

// Summary is the preview of a share; it never involves byte storage.
type Summary struct {
	Code         string    `json:"code"`
	FileName     string    `json:"file_name"`
	OriginalName string    `json:"original_name,omitempty"`
	Category     string    `json:"conversion_type"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func summarize(rec Record) Summary {
	return Summary{
		Code:         rec.Code,
		FileName:     rec.DisplayName,
		OriginalName: rec.OriginalName,
		Category:     rec.Category,
		SizeBytes:    rec.SizeBytes,
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
	}
}

// Link is a presigned download URL.
type Link struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	Expired         int           `json:"expired"`
	DanglingRecords int           `json:"dangling_records"`
	OrphanObjects   int           `json:"orphan_objects"`
	PartialFiles    int           `json:"partial_files"`
	Failures        int           `json:"failures"`
	Duration        time.Duration `json:"duration"`
}

// Deletion reasons reported to the Observer.
const (
	ReasonManual   = "manual"
	ReasonExpired  = "expired"
	ReasonDangling = "dangling"
	ReasonOrphan   = "orphan"
)
