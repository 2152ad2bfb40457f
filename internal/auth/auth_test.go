package auth

import (
	"testing"

	"controlplane/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite database with the full schema.
// A single pooled connection keeps the shared in-memory store visible
// to every caller.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(
		&domain.User{},
		&domain.Credential{},
		&domain.RevokedToken{},
		&domain.Wallet{},
		&domain.Transaction{},
		&domain.Deal{},
		&domain.Pricing{},
	))
	return gdb
}
