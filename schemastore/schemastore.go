// Package schemastore tracks the version of each destination table a pipe
// run has migrated, grounded on agntcy-dir's database/gorm migration
// pattern: one more AutoMigrate'd model, this time genuinely static (a
// fixed SchemaVersion row shape), so AutoMigrate is the right tool here
// unlike the dynamic destination tables gormjob handles.
package schemastore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// SchemaVersion is the migrated row recording the last-seen version for a
// table.
type SchemaVersion struct {
	Table   string `gorm:"primarykey"`
	Version int
}

// VersionStore reads and advances the schema version a destination table
// is currently at, so a Dispatcher consumer knows whether AlterTable needs
// to run before InsertItems.
type VersionStore interface {
	GetVersion(ctx context.Context, table string) (int, error)
	BumpVersion(ctx context.Context, table string) (int, error)
}

// GormStore implements VersionStore on a *gorm.DB, migrating its own
// SchemaVersion table on construction.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the schema_versions table and returns a ready
// GormStore.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&SchemaVersion{}); err != nil {
		return nil, fmt.Errorf("schemastore: failed to migrate schema version table: %w", err)
	}
	return &GormStore{db: db}, nil
}

// GetVersion returns table's current version, or 0 if it has never been
// recorded.
func (s *GormStore) GetVersion(ctx context.Context, table string) (int, error) {
	var row SchemaVersion
	err := s.db.WithContext(ctx).Where("table = ?", table).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schemastore: failed to read version for table %s: %w", table, err)
	}
	return row.Version, nil
}

// BumpVersion increments and persists table's version, creating the row
// if it doesn't exist yet, and returns the new version.
func (s *GormStore) BumpVersion(ctx context.Context, table string) (int, error) {
	current, err := s.GetVersion(ctx, table)
	if err != nil {
		return 0, err
	}
	next := current + 1
	row := SchemaVersion{Table: table, Version: next}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return 0, fmt.Errorf("schemastore: failed to bump version for table %s: %w", table, err)
	}
	return next, nil
}

var _ VersionStore = (*GormStore)(nil)
