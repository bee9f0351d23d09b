package metastore

import "errors"

var (
	// ErrDuplicateCode indicates the code is already registered.
	ErrDuplicateCode = errors.New("duplicate code")
	// ErrNotFound signals that no record exists for the code.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidRecord is returned for records missing required fields.
	ErrInvalidRecord = errors.New("invalid record")
)

func validate(rec Record) error {
	if rec.Code == "" || rec.StorageLocation == "" {
		return ErrInvalidRecord
	}
	if !rec.ExpiresAt.After(rec.CreatedAt) {
		return ErrInvalidRecord
	}
	return nil
}
