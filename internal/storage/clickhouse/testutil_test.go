package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testImage = "clickhouse/clickhouse-server:24.1-alpine"

// newTestConn starts a throwaway ClickHouse server, creates the ledger schema
// in database "ledger_test" and returns a connection to it. The server is
// removed when the test ends.
func newTestConn(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("clickhouse container test skipped in -short mode")
	}

	ctx := context.Background()
	ch, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImage,
			ExposedPorts: []string{nativePort + "/tcp", "8123/tcp"},
			Env:          map[string]string{"CLICKHOUSE_DB": "ledger_test"},
			WaitingFor: wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Terminate(ctx) })

	endpoint, err := ch.PortEndpoint(ctx, nativePort+"/tcp", "")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://default:@%s/ledger_test", endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	createLedgerSchema(t, conn)
	return conn
}

// createLedgerSchema runs the ClickHouse migration files in name order. Every
// file holds one statement.
func createLedgerSchema(t *testing.T, conn *Conn) {
	t.Helper()

	files, err := filepath.Glob(filepath.Join("..", "migrations", "clickhouse", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)

	for _, f := range files {
		sql, err := os.ReadFile(f)
		require.NoError(t, err)
		stmt := strings.TrimRight(strings.TrimSpace(string(sql)), ";")
		require.NoError(t, conn.Exec(context.Background(), stmt), filepath.Base(f))
	}
}
