package share

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates caller supplied data is unusable (no bytes, incomplete upload).
	ErrInvalidInput = errors.New("invalid input")
	// ErrTooLarge signals that the upload exceeds configured limits.
	ErrTooLarge = fmt.Errorf("%w: file too large", ErrInvalidInput)
	// ErrNotFound covers unknown, malformed, expired and inconsistent codes alike.
	ErrNotFound = errors.New("share not found")
	// ErrStorageFailure wraps I/O errors from byte or metadata storage.
	ErrStorageFailure = errors.New("storage failure")
	// ErrCodeSpaceExhausted is returned when no free code was found within the retry budget.
	ErrCodeSpaceExhausted = errors.New("code space exhausted")
	// ErrLinkUnsupported is returned when the byte store cannot presign URLs.
	ErrLinkUnsupported = errors.New("direct links not supported")
	// ErrSweepInProgress is returned by a manual sweep while another pass runs.
	ErrSweepInProgress = errors.New("sweep already in progress")
	// ErrBusy is returned by Delete while a create or sweeper repair holds the code.
	ErrBusy = errors.New("code is held by another operation")
)
