package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/abduss/swiftshare/internal/config"
)

const (
	issuer            = "swiftshare"
	audience          = "swiftshare-api"
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt limit
	maxNameLength     = 128
)

// accountStore abstracts the persistence layer.
type accountStore interface {
	CreateAccount(ctx context.Context, acct Account) (Account, error)
	FindAccount(ctx context.Context, email, mode string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
}

// Service encapsulates account use cases.
type Service struct {
	store   accountStore
	cfg     config.AuthConfig
	nowFunc func() time.Time
	parser  *jwt.Parser
}

// NewService creates a Service with dependencies.
func NewService(store accountStore, cfg config.AuthConfig) *Service {
	s := &Service{store: store, cfg: cfg, nowFunc: time.Now}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.nowFunc() }),
	)
	return s
}

// QuickAccessInput carries the fields for free-mode access.
type QuickAccessInput struct {
	Email string
	Name  string
}

// LoginInput carries password credentials.
type LoginInput struct {
	Email    string
	Password string
}

type accessClaims struct {
	Email string `json:"email"`
	Mode  string `json:"mode"`
	jwt.RegisteredClaims
}

// QuickAccess grants free-mode access, registering the email on first use.
func (s *Service) QuickAccess(ctx context.Context, input QuickAccessInput) (AuthResult, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return AuthResult{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > maxNameLength {
		return AuthResult{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	acct, err := s.store.FindAccount(ctx, email, ModeFree)
	created := false
	switch {
	case errors.Is(err, ErrAccountNotFound):
		acct, err = s.store.CreateAccount(ctx, Account{
			ID:    uuid.New(),
			Email: email,
			Name:  &name,
			Mode:  ModeFree,
		})
		if errors.Is(err, ErrAccountExists) {
			acct, err = s.store.FindAccount(ctx, email, ModeFree)
		} else {
			created = err == nil
		}
		if err != nil {
			return AuthResult{}, fmt.Errorf("register free account: %w", err)
		}
	case err != nil:
		return AuthResult{}, fmt.Errorf("find account: %w", err)
	}

	return s.issue(acct, created)
}

// Login verifies a premium account password. The first login for an email
// registers the account with that password.
func (s *Service) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return AuthResult{}, err
	}
	if len(input.Password) < minPasswordLength || len(input.Password) > maxPasswordLength {
		return AuthResult{}, ErrInvalidCredentials
	}

	acct, err := s.store.FindAccount(ctx, email, ModePremium)
	if err == nil {
		if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(input.Password)); err != nil {
			return AuthResult{}, ErrInvalidCredentials
		}
		return s.issue(acct, false)
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return AuthResult{}, fmt.Errorf("find account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cfg.BcryptCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	acct, err = s.store.CreateAccount(ctx, Account{
		ID:           uuid.New(),
		Email:        email,
		Mode:         ModePremium,
		PasswordHash: string(hash),
	})
	if errors.Is(err, ErrAccountExists) {
		// registered concurrently; verify against the winner
		return s.Login(ctx, input)
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("register premium account: %w", err)
	}
	return s.issue(acct, true)
}

// Lookup returns the account registered for email.
func (s *Service) Lookup(ctx context.Context, email string) (Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Account{}, ErrAccountNotFound
	}
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return Account{}, err
	}
	return acct.Safe(), nil
}

// ValidateAccessToken verifies the token signature and extracts its claims.
func (s *Service) ValidateAccessToken(tokenString string) (Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrUnauthorized
	}

	var claims accessClaims
	parsed, err := s.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.AccessTokenSecret), nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrUnauthorized
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Claims{}, ErrUnauthorized
	}
	return Claims{
		AccountID: id,
		Email:     claims.Email,
		Mode:      claims.Mode,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) issue(acct Account, created bool) (AuthResult, error) {
	now := s.nowFunc()
	expiresAt := now.Add(s.cfg.AccessTokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Email: acct.Email,
		Mode:  acct.Mode,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID.String(),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString([]byte(s.cfg.AccessTokenSecret))
	if err != nil {
		return AuthResult{}, fmt.Errorf("sign access token: %w", err)
	}

	return AuthResult{
		Account: acct.Safe(),
		Token:   AccessToken{Token: signed, ExpiresAt: expiresAt},
		Created: created,
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return email, nil
}
