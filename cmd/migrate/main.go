package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"

	"github.com/consultdesk/booking-backend/internal/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Usage: migrate [-dir migrations] [up|down|version|force N]
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	dir := flag.String("dir", "", "migrations directory (default: search upwards for ./migrations)")
	steps := flag.Int("steps", 0, "apply only N migrations (negative to roll back)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	dbURL := config.FromEnv().Database.URL
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	migrationsPath := *dir
	if migrationsPath == "" {
		migrationsPath = findMigrationsDir()
	}
	if migrationsPath == "" {
		logger.Fatal("Migrations directory not found")
	}
	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		logger.Fatalf("Invalid migrations path: %v", err)
	}

	m, err := migrate.New("file://"+absPath, dbURL)
	if err != nil {
		logger.Fatalf("Failed to initialize migrations: %v", err)
	}
	defer m.Close()

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	log := logger.WithFields(logrus.Fields{"command": cmd, "path": absPath})

	switch {
	case *steps != 0:
		err = m.Steps(*steps)
	case cmd == "up":
		err = m.Up()
	case cmd == "down":
		err = m.Down()
	case cmd == "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			log.Fatalf("Failed to read version: %v", verr)
		}
		log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("Current schema version")
		return
	default:
		log.Fatalf("Unknown command %q (want up, down or version)", cmd)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Migration failed: %v", err)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("No migrations to apply")
		return
	}
	log.Info("Migration successful")
}

// findMigrationsDir walks up from the working directory looking for ./migrations
func findMigrationsDir() string {
	current, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < 6; i++ {
		candidate := filepath.Join(current, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return ""
}
