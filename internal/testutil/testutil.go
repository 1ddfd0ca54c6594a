// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"shiftbot/internal/config"
	"shiftbot/internal/db"
)

// NewDB opens a migrated sqlite database that lives for the test
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	conn, err := db.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "shiftbot.db"),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

// Clock is a settable time source
type Clock struct {
	T time.Time
}

// Now returns the current fixed instant
func (c *Clock) Now() time.Time {
	return c.T
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}
