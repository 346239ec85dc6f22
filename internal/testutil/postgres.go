package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/stem/pkg/database"
)

// StartPostgres launches a disposable Postgres container, applies the
// migrations, and returns a connected handle. Callers are skipped unless
// FERN_DB_TESTS is set, so the default test run needs no Docker daemon.
func StartPostgres(t *testing.T) database.DB {
	t.Helper()

	if os.Getenv("FERN_DB_TESTS") == "" {
		t.Skip("set FERN_DB_TESTS to run database tests")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "fern",
				"POSTGRES_PASSWORD": "fern",
				"POSTGRES_DB":       "fern",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=fern password=fern dbname=fern sslmode=disable", host, port.Port())

	var db *sqlx.DB
	for attempt := 0; attempt < 10; attempt++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := NewLogger()

	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		t.Fatalf("failed to create migration driver: %v", err)
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: migrationDir(t),
	})
	if err := migrations.Migrate("fern", driver); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	return database.NewDatabaseInstance(db, logger)
}

// migrationDir resolves db/pg relative to this source file, so tests in any
// package find the migrations regardless of their working directory.
func migrationDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to locate migration directory")
	}
	return filepath.Join(filepath.Dir(file), "..", "..", "db", "pg")
}
