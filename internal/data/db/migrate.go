package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/scigraph/scigraph-backend/internal/domain"
)

// Migrate creates or updates the relational tables. Graph nodes and edges
// live in neo4j; only aliases, documents, and run ledgers are relational.
func Migrate(gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("db: migrate requires a database handle")
	}
	return gdb.AutoMigrate(
		&domain.AliasRow{},
		&domain.DocumentRow{},
		&domain.ExtractionRunRow{},
	)
}
