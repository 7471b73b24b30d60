// Package repotest provides repositories backed by throwaway in-memory
// sqlite databases for tests of packages built on the repository.
package repotest

import (
	"context"
	"testing"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/repository"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

// New opens a private in-memory database with every table migrated and the
// default plans seeded. It is closed when the test ends.
func New(tb testing.TB) *repository.GormRepository {
	tb.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}
	repo, err := repository.NewGormRepository(cfg, zaptest.NewLogger(tb))
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = repo.Close() })

	if err := repo.Migrate(context.Background()); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return repo
}
