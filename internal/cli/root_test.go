package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leialab/leia/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig creates a config file whose store and log paths live
// under the test's temp dir, and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "leia.json")
	content := `{
		"data_dir": "` + dir + `",
		"store": {"path": "` + filepath.Join(dir, "leia.db") + `"},
		"logging": {"level": "error", "file": "` + filepath.Join(dir, "leia.log") + `"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := GetRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionFlag(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
}

func TestPurgeRequiresTimeCriterion(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := execute(t, "purge", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time criterion")
}

func TestPurgeAll(t *testing.T) {
	cfgPath := writeTestConfig(t)

	// Seed one session record in the configured store.
	dbPath := filepath.Join(filepath.Dir(cfgPath), "leia.db")
	st, err := store.Open(store.Config{Path: dbPath, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, st.HSet(context.Background(), store.SessionKey("s1"),
		map[string]string{"sessionId": "s1", "createdAt": "1700000000000"}, 0))
	require.NoError(t, st.Close())

	out, err := execute(t, "purge", "--config", cfgPath, "--time-frame", "all")
	require.NoError(t, err)
	assert.Contains(t, out, `"deletedKeys": 1`)
}

func TestPurgeRejectsInvalidMetadata(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := execute(t, "purge", "--config", cfgPath, "--time-frame", "all", "--metadata", "{broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata")

	// Reset for other tests sharing the flag variables.
	purgeMetadata = ""
}

func TestModelsEmptyStore(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, "models", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "no validated models")
}

func TestModelsListsCatalog(t *testing.T) {
	cfgPath := writeTestConfig(t)

	dbPath := filepath.Join(filepath.Dir(cfgPath), "leia.db")
	st, err := store.Open(store.Config{Path: dbPath, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, st.Put(context.Background(), store.ModelsKey("catalog"),
		`["claude","wizard"]`, 0))
	require.NoError(t, st.Close())

	out, err := execute(t, "models", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "claude")
	assert.Contains(t, out, "wizard")
}
