// Package upgrade checks the Postgres schema against the version this
// binary was built for.
package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RequiredSchemaVersion is the migrations/ version this binary expects.
// Bump together with each new migration pair.
const RequiredSchemaVersion uint = 1

// SchemaStatus is the result of a schema compatibility check.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
	Compatible      bool
	NeedsMigration  bool
}

var (
	ErrSchemaOutdated = errors.New("database schema is outdated")
	ErrSchemaDirty    = errors.New("database schema is dirty (failed migration)")
	ErrSchemaAhead    = errors.New("database schema is newer than this binary")
)

// CheckSchema reads golang-migrate's schema_migrations table. A missing
// table or row means the database was never migrated.
func CheckSchema(ctx context.Context, db *sql.DB) (*SchemaStatus, error) {
	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT to_regclass('schema_migrations') IS NOT NULL`).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check schema_migrations: %w", err)
	}
	if !exists {
		return evaluate(0, false, false), nil
	}

	var version uint
	var dirty bool
	err := db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return evaluate(0, false, false), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	return evaluate(version, dirty, true), nil
}

func evaluate(version uint, dirty, migrated bool) *SchemaStatus {
	s := &SchemaStatus{
		CurrentVersion:  version,
		RequiredVersion: RequiredSchemaVersion,
		Dirty:           dirty,
	}
	switch {
	case dirty:
	case !migrated || version < RequiredSchemaVersion:
		s.NeedsMigration = true
	case version == RequiredSchemaVersion:
		s.Compatible = true
	}
	return s
}

// Err maps a status to one of the ErrSchema* sentinels, nil when compatible.
func (s *SchemaStatus) Err() error {
	switch {
	case s.Dirty:
		return ErrSchemaDirty
	case s.NeedsMigration:
		return ErrSchemaOutdated
	case s.CurrentVersion > s.RequiredVersion:
		return ErrSchemaAhead
	}
	return nil
}

// FormatError returns operator-facing remediation steps for s.
func FormatError(s *SchemaStatus) string {
	if s.Dirty {
		return fmt.Sprintf(
			"Database schema is in a dirty state (version %d).\n"+
				"A migration failed partway.\n\n"+
				"  Fix:  modbot migrate force %d\n"+
				"  Then: modbot migrate up\n",
			s.CurrentVersion, s.CurrentVersion-1,
		)
	}
	if s.CurrentVersion > s.RequiredVersion {
		return fmt.Sprintf(
			"Database schema (v%d) is newer than this binary (requires v%d).\n\n"+
				"  Fix: deploy a newer modbot build.\n",
			s.CurrentVersion, s.RequiredVersion,
		)
	}
	return fmt.Sprintf(
		"Database schema is outdated: current v%d, required v%d.\n\n"+
			"  Run: modbot migrate up\n",
		s.CurrentVersion, s.RequiredVersion,
	)
}
