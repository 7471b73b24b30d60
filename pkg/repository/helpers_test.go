package repository

import (
	"context"
	"testing"

	"github.com/example/storefront/pkg/config"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
)

func newTestRepository(t *testing.T) *GormRepository {
	t.Helper()
	repo, err := NewGormRepository(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}
