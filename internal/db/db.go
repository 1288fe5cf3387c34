// Package db opens the Postgres connection kv.PostgresStore is built on
// (cmd/migrate opens its own through golang-migrate); it owns no models of its own since the
// game's entire persisted shape lives in kv_entries, not a GORM-mapped table
// per domain type.
package db

import (
	"errors"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to Postgres using DATABASE_URL.
func Open() (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}
