package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	pkgerrors "github.com/pkg/errors"
)

// migrateLogger satisfies migrate.Logger.
type migrateLogger struct {
	ectologger.Logger
}

func (l migrateLogger) Verbose() bool {
	return true
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.Debugf(strings.TrimSpace(format), v...)
}

type MigrationConfig struct {
	FolderPath string
	Version    uint
	Force      int
	// Rollback a dirty schema to the previous version when a migration fails.
	AutoRollback bool
}

type MigrationService struct {
	config MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// Up applies pending migrations against the Postgres pool behind db.
func (ms *MigrationService) Up(db DB, databaseName string) error {
	folder, err := ms.folder()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db.SQL(), &postgres.Config{DatabaseName: databaseName})
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migration driver")
		return pkgerrors.Wrap(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return pkgerrors.Wrap(err, "failed to create migrate instance")
	}
	m.Log = migrateLogger{Logger: ms.logger}

	return ms.run(m, folder)
}

func (ms *MigrationService) folder() (string, error) {
	folder := ms.config.FolderPath
	if _, err := os.Stat(folder); err == nil {
		return folder, nil
	}

	wd, _ := os.Getwd()
	folder = filepath.Join(wd, ms.config.FolderPath)
	if _, err := os.Stat(folder); err != nil {
		return "", pkgerrors.Wrap(err, fmt.Sprintf("migration folder %s does not exist", folder))
	}
	return folder, nil
}

func (ms *MigrationService) run(m *migrate.Migrate, folder string) error {
	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force schema to version %d", ms.config.Force)
			return err
		}
	}

	previous, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		ms.logger.WithError(err).Warn("Failed to read current schema version")
	}

	started := time.Now()
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}
	ms.logger.Infof("Schema migrations finished in %v", time.Since(started))

	switch {
	case err == nil:
		ms.logger.Info("Successfully applied migrations")
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		ms.logger.Info("No new migrations to apply")
		return nil
	case strings.Contains(err.Error(), "no migration found for version"):
		// the schema is ahead of this build's migration folder
		latest, latestErr := latestVersion(folder)
		if latestErr != nil {
			return latestErr
		}
		ms.logger.Warnf("No migration found for version %d, forcing to %d", previous, latest)
		return m.Force(latest)
	}

	ms.logger.WithError(err).Error("Migration failed")

	version, dirty, versionErr := m.Version()
	if versionErr != nil || !ms.config.AutoRollback || !dirty {
		return err
	}

	target := int(previous)
	if target == 0 {
		target = int(version) - 1
	}
	ms.logger.Warnf("Schema is dirty at version %d, reverting to %d", version, target)
	if forceErr := m.Force(target); forceErr != nil {
		ms.logger.WithError(forceErr).Errorf("Failed to force schema to version %d", target)
		return forceErr
	}

	// still fail so the process does not start on a half-applied schema
	return err
}

var migrationFileRe = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

func latestVersion(folder string) (int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := migrationFileRe.FindStringSubmatch(entry.Name())
		if len(matches) < 2 {
			continue
		}
		v, err := strconv.Atoi(matches[1])
		if err != nil {
			return 0, err
		}
		versions = append(versions, v)
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found in %s", folder)
	}

	sort.Ints(versions)
	return versions[len(versions)-1], nil
}
