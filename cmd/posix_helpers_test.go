package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHelper(t *testing.T, args ...string) error {
	t.Helper()

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestPosixHelpers(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "out", "objects")

	require.Error(t, runHelper(t, "mkdir", nested))
	require.NoError(t, runHelper(t, "mkdir", "-p", nested))
	assert.DirExists(t, nested)

	source := filepath.Join(dir, "a.o")
	require.NoError(t, os.WriteFile(source, []byte("obj"), 0644))

	require.NoError(t, runHelper(t, "mv", source, nested))
	assert.NoFileExists(t, source)
	assert.FileExists(t, filepath.Join(nested, "a.o"))

	require.NoError(t, runHelper(t, "mv", filepath.Join(nested, "a.o"), filepath.Join(dir, "b.o")))
	assert.FileExists(t, filepath.Join(dir, "b.o"))

	require.Error(t, runHelper(t, "mv", filepath.Join(dir, "b.o"), filepath.Join(dir, "missing", "c.o")))

	require.Error(t, runHelper(t, "rm", filepath.Join(dir, "out")))
	require.NoError(t, runHelper(t, "rm", "-r", filepath.Join(dir, "out"), filepath.Join(dir, "b.o")))
	assert.NoDirExists(t, filepath.Join(dir, "out"))
	assert.NoFileExists(t, filepath.Join(dir, "b.o"))

	require.NoError(t, runHelper(t, "rm", "-f", filepath.Join(dir, "gone")))
}
