package testutil

import (
	"context"
	"net"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/nkiryanov/yieldmart/internal/db"
)

// Return random free port on 127.0.0.1 address
func RandomPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return 0, err
	}
	defer ln.Close() // nolint:errcheck

	addr := ln.Addr().(*net.TCPAddr)
	return addr.Port, nil
}

// Image may be overridden to test against another postgres version
const postgresImageEnv = "YIELDMART_TEST_POSTGRES_IMAGE"

const defaultPostgresImage = "postgres:17-alpine"

type PostgresContainer struct {
	DSN       string
	Pool      *pgxpool.Pool // schema is migrated
	Terminate func()
}

// Start postgres in docker and apply migrations
// Test is skipped when docker is not available, failed on any other error
// Terminate has to be called when tests stopped
func StartPostgresContainer(t *testing.T) PostgresContainer {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)

	image := os.Getenv(postgresImageEnv)
	if image == "" {
		image = defaultPostgresImage
	}

	container, err := postgres.Run(t.Context(),
		image,
		postgres.WithDatabase("yieldmart-test"),
		postgres.WithUsername("yieldmart"),
		postgres.WithPassword("pwd"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "postgres container has to start, image %s", image)

	dsn, err := container.ConnectionString(t.Context(), "sslmode=disable")
	require.NoError(t, err, "postgres container has to expose connection string")
	t.Logf("Postgres %s started, DSN=%v", image, dsn)

	dbpool, err := db.ConnectAndMigrate(t.Context(), dsn)
	require.NoError(t, err, "schema has to be migrated")

	return PostgresContainer{
		DSN:       dsn,
		Pool:      dbpool,
		Terminate: dbpool.Close,
	}
}

type dbtx interface {
	Begin(context.Context) (pgx.Tx, error)
}

// Run testFunc in a transaction rolled back at test end
// Called on pgx.Tx it opens a savepoint, so calls may be nested
func InTx(dbtx dbtx, t *testing.T, testFunc func(tx pgx.Tx)) {
	tx, err := dbtx.Begin(t.Context())
	require.NoError(t, err)

	defer func() {
		err := tx.Rollback(t.Context())
		require.NoError(t, err)
	}()

	testFunc(tx)
}
