package account

import (
	"time"

	"github.com/google/uuid"
)

// Access modes. A single email may hold one account of each mode.
const (
	ModeFree    = "free"
	ModePremium = "premium"
)

// Account is a registered visitor.
type Account struct {
	ID           uuid.UUID
	Email        string
	Name         *string
	Mode         string
	PasswordHash string
	CreatedAt    time.Time
}

// Safe strips credentials for response payloads.
func (a Account) Safe() Account {
	a.PasswordHash = ""
	return a
}

// AccessToken is a signed bearer token.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// AuthResult is returned by QuickAccess and Login.
type AuthResult struct {
	Account Account
	Token   AccessToken
	// Created is true when the call registered a new account.
	Created bool
}

// Claims is the identity carried by a validated access token.
type Claims struct {
	AccountID uuid.UUID
	Email     string
	Mode      string
	ExpiresAt time.Time
}
