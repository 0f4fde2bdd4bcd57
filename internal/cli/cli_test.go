package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/familytrip/internal/backfill"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", "", "--env-file", filepath.Join(t.TempDir(), ".env")}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func TestBackfillCmd(t *testing.T) {
	out, err := run(t, "backfill", "--operator", "0")
	require.NoError(t, err)

	var report backfill.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Zero(t, report.Skipped)
}

func TestBackfillCmd_Errors(t *testing.T) {
	tests := map[string][]string{
		"missing operator":  {"backfill"},
		"not the operator":  {"backfill", "--operator", "3"},
		"memory migrations": {"migrate"},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := run(t, args...)
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("STORAGE_DRIVER=bogus\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("STORAGE_DRIVER") })

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", "", "--env-file", env, "migrate"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	require.ErrorContains(t, err, `"bogus"`)
}
