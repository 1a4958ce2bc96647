// Package gormjob implements destination.JobClient on top of gorm and the
// postgres driver, grounded on agntcy-dir's database/gorm package: a thin
// wrapper around *gorm.DB that runs DDL and checks readiness with a
// context-bound ping. Because the destination schema here is only known at
// runtime (it comes from whatever a pipe yields, not from a compiled-in
// model), DDL is raw CREATE TABLE / ALTER TABLE statements run through
// Exec, with gorm's Migrator used only to check which tables and columns
// already exist, rather than AutoMigrate, which needs a concrete struct.
package gormjob

import (
	"context"
	"fmt"

	"github.com/riverkit/pipe/destination"
	"github.com/riverkit/pipe/logging"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Column is re-exported so callers don't need to import destination just
// to describe columns when they already hold a *Client.
type Column = destination.Column

// Client implements destination.JobClient against a Postgres database via
// gorm.
type Client struct {
	db  *gorm.DB
	log *logging.Logger
}

// Open connects to dsn and returns a ready Client.
func Open(dsn string, log *logging.Logger) (*Client, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("gormjob: failed to open connection: %w", err)
	}
	return &Client{db: db, log: log}, nil
}

// IsReady reports whether the underlying connection can serve queries.
func (c *Client) IsReady(ctx context.Context) bool {
	sqlDB, err := c.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

// CreateTable creates table with the given columns if it does not already
// exist.
func (c *Client) CreateTable(ctx context.Context, table string, columns []Column) error {
	db := c.db.WithContext(ctx)
	if db.Migrator().HasTable(table) {
		return nil
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), columnDefs(columns))
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("gormjob: failed to create table %s: %w", table, err)
	}
	c.logMigration(table, len(columns), "table created")
	return nil
}

// AlterTable adds columns to table that it does not already have.
func (c *Client) AlterTable(ctx context.Context, table string, add []Column) error {
	db := c.db.WithContext(ctx)
	added := 0
	for _, col := range add {
		if db.Migrator().HasColumn(table, col.Name) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(table), columnDef(col))
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("gormjob: failed to add column %s to table %s: %w", col.Name, table, err)
		}
		added++
	}
	if added > 0 {
		c.logMigration(table, added, "table altered")
	}
	return nil
}

// InsertItems batch-inserts rows into table.
func (c *Client) InsertItems(ctx context.Context, table string, items []map[string]any) error {
	if len(items) == 0 {
		return nil
	}
	if err := c.db.WithContext(ctx).Table(table).Create(items).Error; err != nil {
		return fmt.Errorf("gormjob: failed to insert into table %s: %w", table, err)
	}
	if c.log != nil {
		c.log.WithField("table", table).WithField("rows", len(items)).Info("items inserted")
	}
	return nil
}

func (c *Client) logMigration(table string, count int, msg string) {
	if c.log != nil {
		c.log.WithField("table", table).WithField("columns", count).Info(msg)
	}
}

func columnDefs(columns []Column) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = columnDef(col)
	}
	return joinComma(defs)
}

func columnDef(col Column) string {
	def := fmt.Sprintf("%s %s", quoteIdent(col.Name), sqlType(col.DataType))
	if !col.Nullable {
		def += " NOT NULL"
	}
	return def
}

func sqlType(dataType string) string {
	switch dataType {
	case "int", "integer":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "float", "double", "numeric":
		return "DOUBLE PRECISION"
	case "bool", "boolean":
		return "BOOLEAN"
	case "timestamp":
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

var _ destination.JobClient = (*Client)(nil)
