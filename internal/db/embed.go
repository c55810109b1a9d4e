package db

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode switches getMigrationsFS to read migration files from the
// source tree instead of the embedded copy, so schema edits do not
// require a rebuild.
var DevMode bool

// getMigrationsFS returns the migration files rooted at the directory
// that holds the *.sql files.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/db/migrations"), nil
	}
	return fs.Sub(migrationsFS, "migrations")
}
