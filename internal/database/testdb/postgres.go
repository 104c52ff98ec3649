package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// Postgres starts a disposable postgres container and returns an empty
// database. It skips unless DELIVERY_INTEGRATION=1.
func Postgres(t *testing.T) *bun.DB {
	t.Helper()
	if testing.Short() || os.Getenv("DELIVERY_INTEGRATION") != "1" {
		t.Skip("Skipping postgres integration test (set DELIVERY_INTEGRATION=1)")
	}

	ctx := context.Background()
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "delivery",
				"POSTGRES_PASSWORD": "delivery",
				"POSTGRES_DB":       "delivery",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { pg.Terminate(ctx) })

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to read container host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to read container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://delivery:delivery@%s:%s/delivery?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to open postgres: %v", err)
	}
	sqldb.SetMaxOpenConns(32)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}
