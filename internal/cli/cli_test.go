package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"lease_engine/internal/bootstrap"
	"lease_engine/internal/engine"
	"lease_engine/pkg/finance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
store:
  driver: sqlite
  path: %q
server:
  enabled: false
telemetry:
  enable_metrics: false
`, filepath.Join(dir, "leases.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t)

	out, err := run(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "driver: sqlite")
	assert.Contains(t, out, "lpn: USDC")

	_, err = run(t, "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInspectCommand(t *testing.T) {
	path := writeConfig(t)

	cfg, err := bootstrap.LoadConfig(path)
	require.NoError(t, err)
	app, err := bootstrap.NewAppFromConfig(cfg)
	require.NoError(t, err)
	_, _, err = app.Engine.OpenLease(context.Background(), engine.OpenParams{
		ID:          "lease-1",
		Customer:    "alice",
		Downpayment: finance.NewCoin(10_000_000, "USDC"),
		Borrow:      finance.NewCoin(10_000_000, "USDC"),
		Asset:       finance.NewCoin(2_000_000, "ATOM"),
	})
	require.NoError(t, err)
	require.NoError(t, app.Store.Close())

	out, err := run(t, "inspect", "lease-1", "--config", path)
	require.NoError(t, err)

	var view map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "alice", view["customer"])
	assert.Equal(t, map[string]interface{}{"amount": "10000000", "ticker": "USDC"}, view["principal_due"])

	_, err = run(t, "inspect", "missing", "--config", path)
	assert.Error(t, err)

	_, err = run(t, "inspect", "lease-1", "--config", path, "--at", "yesterday")
	assert.Error(t, err)
}
