package db

import (
	"fmt"
	"io/fs"
	"log"
	"os"
)

// RunMigrateCommand dispatches the 'migrate' subcommand against the
// database at dbPath. The connection is opened without schema
// initialization so the requested action controls the schema.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	fsys, err := getMigrationsFS()
	if err != nil {
		log.Fatalf("failed to load migrations: %v", err)
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		handleMigrateUp(database, fsys)

	case "down":
		handleMigrateDown(database, fsys)

	case "status":
		handleMigrateStatus(database, fsys)

	case "version":
		if len(args) < 2 {
			log.Fatal("usage: survival-report migrate version <N>")
		}
		handleMigrateVersion(database, fsys, args[1])

	case "force":
		if len(args) < 2 {
			log.Fatal("usage: survival-report migrate force <N>")
		}
		handleMigrateForce(database, fsys, args[1])

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

func handleMigrateUp(database *DB, fsys fs.FS) {
	log.Printf("Running migrations...")
	if err := database.MigrateUp(fsys); err != nil {
		log.Fatalf("Migration up failed: %v", err)
	}
	log.Println("✓ All migrations applied")

	version, dirty, _ := database.MigrateVersion(fsys)
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

func handleMigrateDown(database *DB, fsys fs.FS) {
	log.Printf("Rolling back one migration...")
	if err := database.MigrateDown(fsys); err != nil {
		log.Fatalf("Migration down failed: %v", err)
	}
	log.Println("✓ Migration rolled back")

	version, dirty, _ := database.MigrateVersion(fsys)
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

func handleMigrateStatus(database *DB, fsys fs.FS) {
	version, dirty, err := database.MigrateVersion(fsys)
	if err != nil {
		log.Fatalf("Failed to get migration status: %v", err)
	}
	latest, err := GetLatestMigrationVersion(fsys)
	if err != nil {
		log.Fatalf("Failed to get latest migration version: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", version)
	fmt.Printf("Latest available: %d\n", latest)
	fmt.Printf("Dirty: %v\n", dirty)

	switch {
	case dirty:
		fmt.Println("\n⚠️  Database is in a dirty state: a migration failed mid-run.")
		fmt.Println("Inspect the database, fix the issue, then run:")
		fmt.Println("  survival-report migrate force <version>")
	case version < latest:
		fmt.Printf("\nDatabase is %d version(s) behind. Run 'survival-report migrate up' to update.\n", latest-version)
	default:
		fmt.Println("\n✓ Database is up to date")
	}
}

func handleMigrateVersion(database *DB, fsys fs.FS, versionStr string) {
	var target uint
	if _, err := fmt.Sscanf(versionStr, "%d", &target); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	log.Printf("Migrating to version %d...", target)
	if err := database.MigrateTo(fsys, target); err != nil {
		log.Fatalf("Migration to version %d failed: %v", target, err)
	}
	log.Printf("✓ Migrated to version %d", target)
}

func handleMigrateForce(database *DB, fsys fs.FS, versionStr string) {
	var target int
	if _, err := fmt.Sscanf(versionStr, "%d", &target); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	fmt.Printf("⚠️  Forcing migration version to %d\n", target)
	fmt.Println("This only rewrites the recorded version; no migrations run.")
	fmt.Print("Continue? [y/N]: ")

	var response string
	fmt.Scanln(&response)
	if response != "y" && response != "Y" {
		log.Println("Aborted")
		os.Exit(0)
	}

	if err := database.MigrateForce(fsys, target); err != nil {
		log.Fatalf("Force migration failed: %v", err)
	}
	log.Printf("✓ Migration version forced to %d", target)
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: survival-report migrate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Rollback one migration")
	fmt.Println("  status          Show current migration status and version")
	fmt.Println("  version <N>     Migrate to specific version N")
	fmt.Println("  force <N>       Force migration version to N (recovery only)")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  survival-report migrate up")
	fmt.Println("  survival-report migrate status")
	fmt.Println("  survival-report migrate version 1")
}
