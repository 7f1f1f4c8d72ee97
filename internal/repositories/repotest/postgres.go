// Package repotest starts throwaway Postgres, Redis and Neo4j containers for
// integration tests.
package repotest

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joiedevivre/jasmine/pkg/database"
)

const (
	image    = "postgres:15-alpine"
	user     = "jasmine"
	password = "jasmine"
	dbName   = "jasmine"
)

func Logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// StartPostgres runs a migrated Postgres container for the lifetime of t.
// The test is skipped in -short mode or when Docker is not reachable.
func StartPostgres(t *testing.T) database.DB {
	t.Helper()
	ctx := context.Background()
	container := startContainer(t, "Postgres", testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       dbName,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	logger := Logger()
	db, err := database.Connect(ctx, database.Config{
		Driver:       "postgres",
		Host:         host,
		Port:         port.Port(),
		UserName:     user,
		Password:     password,
		Name:         dbName,
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 5,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, database.MigrationConfig{FolderPath: migrationsDir()})
	require.NoError(t, migrations.Up(db, dbName))

	return db
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "pg")
}

// Exec runs seed statements, failing the test on the first error.
func Exec(t *testing.T, db database.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := db.ExecContext(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
}
