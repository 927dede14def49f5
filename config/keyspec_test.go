package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadKeySpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")
	err := os.WriteFile(path, []byte("tables:\n  orders: [id]\n  events: [tenant_id, event_id]\n"), 0o644)
	require.NoError(t, err)

	spec, err := LoadKeySpec(path)
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, spec.KeyColumns("orders"))
	require.Equal(t, []string{"tenant_id", "event_id"}, spec.KeyColumns("events"))
	require.Nil(t, spec.KeyColumns("unknown"))
}

func TestLoadKeySpecEmptyPath(t *testing.T) {
	spec, err := LoadKeySpec("")
	require.NoError(t, err)
	require.Nil(t, spec.KeyColumns("anything"))
}
