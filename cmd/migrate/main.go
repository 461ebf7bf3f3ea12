package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/ManuelReschke/DocPay/internal/pkg/config"
	"github.com/ManuelReschke/DocPay/internal/pkg/database"
	"github.com/ManuelReschke/DocPay/internal/pkg/env"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Database.Driver != "mysql" {
		log.Fatalf("SQL migrations target MySQL; use DB_AUTO_MIGRATE=true for %s", cfg.Database.Driver)
	}

	log.Printf("Connecting to database: %s@%s/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Name)

	m, err := migrate.New("file://migrations", migrationURL(cfg.Database))
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("Failed to close migration resources: %v, %v", sourceErr, dbErr)
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
			log.Println("No change: database is up to date")
		} else if err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		} else {
			log.Println("Migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			log.Fatalf("Failed to roll back the last migration: %v", err)
		}
		log.Println("Rolled back the last migration")

	case "goto":
		if len(os.Args) < 3 {
			log.Fatalf("Please pass a version number")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalf("Invalid version number: %v", err)
		}
		if err := m.Migrate(uint(version)); errors.Is(err, migrate.ErrNoChange) {
			log.Printf("No change: database is already at version %d", version)
		} else if err != nil {
			log.Fatalf("Failed to migrate to version %d: %v", version, err)
		} else {
			log.Printf("Migrated to version %d", version)
		}

	case "status":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("No migrations have been applied")
		} else if err != nil {
			log.Fatalf("Failed to read migration version: %v", err)
		} else {
			dirtyStatus := ""
			if dirty {
				dirtyStatus = " (dirty)"
			}
			log.Printf("Current migration version: %d%s", version, dirtyStatus)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

// migrationURL turns the gorm DSN into a golang-migrate URL. The migrate
// driver needs multiStatements for files with several statements.
func migrationURL(cfg config.DatabaseConfig) string {
	dsn := database.MySQLDSN(cfg)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("mysql://%s%smultiStatements=true", dsn, sep)
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  up           - apply all pending migrations")
	fmt.Println("  down         - roll back the last migration")
	fmt.Println("  goto VERSION - migrate to a specific version")
	fmt.Println("  status       - show the current migration version")
}
