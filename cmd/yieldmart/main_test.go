package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/yieldmart/internal/testutil"
)

func Test_run(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	t.Run("serve and stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		errCh := make(chan error, 1)
		go func() {
			errCh <- run(ctx, os.Getenv, os.Getwd, []string{
				"--address", listenAddr,
				"--log-level", "debug",
				"--environment", "dev",
				"--database", pg.DSN,
			})
		}()

		require.Eventually(t, func() bool {
			resp, err := http.Get("http://" + listenAddr + "/health")
			if err != nil {
				return false
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return resp.StatusCode == http.StatusOK
		}, 1500*time.Millisecond, 50*time.Millisecond, "server should answer on /health")

		require.NoError(t, <-errCh, "on correct stop should not return error")
	})

	t.Run("invalid config", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		t.Cleanup(cancel)

		// Unknown log level must fail before serving
		err := run(ctx, os.Getenv, os.Getwd, []string{
			"--address", listenAddr,
			"--log-level", "loud",
			"--database", pg.DSN,
		})

		require.Error(t, err)
	})

	t.Run("migrate", func(t *testing.T) {
		c := NewConfig()
		cmd := newRootCmd(c)
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetArgs([]string{"migrate", "--database", pg.DSN})

		err := cmd.ExecuteContext(t.Context())

		require.NoError(t, err)
		require.Contains(t, out.String(), "migrations applied")
	})

	t.Run("enqueue unknown campaign", func(t *testing.T) {
		c := NewConfig()
		cmd := newRootCmd(c)
		cmd.SetArgs([]string{"enqueue", "dispatch-campaign", "--database", pg.DSN, "--campaign", "0198a7b4-0000-7000-8000-000000000001"})

		err := cmd.ExecuteContext(t.Context())

		require.ErrorContains(t, err, "campaign not found")
	})
}
