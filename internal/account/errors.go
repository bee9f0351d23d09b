package account

import "errors"

var (
	// ErrAccountExists indicates an account with the same email and mode is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials is returned when a password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput flags missing or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAccountNotFound signals that no account uses the email.
	ErrAccountNotFound = errors.New("account not found")
	// ErrUnauthorized represents missing or invalid access tokens.
	ErrUnauthorized = errors.New("unauthorized")
)
