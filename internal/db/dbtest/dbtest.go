// Package dbtest opens throwaway in-memory databases for package tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"wgprov/internal/db"
)

// New returns a migrated in-memory SQLite database private to the test.
// A single connection is used so every goroutine sees the same database and
// transactions are serialized the way a row lock would serialize them.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	gdb, err := db.Open("sqlite", dsn, db.Options{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.Migrate(context.Background(), gdb); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
