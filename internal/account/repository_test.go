package account

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestRepositoryIntegration(t *testing.T) {
	dsn := os.Getenv("SWIFTSHARE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SWIFTSHARE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	repo := NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	email := "it-" + uuid.NewString() + "@example.com"
	name := "Integration"
	created, err := repo.CreateAccount(ctx, Account{ID: uuid.New(), Email: email, Name: &name, Mode: ModeFree})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}

	_, err = repo.CreateAccount(ctx, Account{ID: uuid.New(), Email: email, Mode: ModeFree})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	found, err := repo.FindAccount(ctx, email, ModeFree)
	if err != nil || found.ID != created.ID {
		t.Fatalf("find account: %v", err)
	}
	if _, err := repo.FindAccount(ctx, email, ModePremium); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := repo.FindByEmail(ctx, email); err != nil {
		t.Fatalf("find by email: %v", err)
	}
}
