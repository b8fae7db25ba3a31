package prereq

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleutherai/neoxctl/pkg/errors"
	"github.com/eleutherai/neoxctl/pkg/version"
)

// fakeTool drops an executable shell script on a temp PATH.
func fakeTool(t *testing.T, dir, name, output string) {
	t.Helper()
	script := "#!/bin/sh\necho \"" + output + "\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755))
}

func TestCheckMissingTool(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	results, err := Check(context.Background(), Tool{Name: "definitely-not-installed"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMissingDependency, errors.CodeOf(err))
	require.Len(t, results, 1)
	assert.Equal(t, "missing", results[0].Status)
	assert.False(t, results[0].Installed)
}

func TestCheckVersionGate(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "sbatch", "slurm 23.02.7")
	t.Setenv("PATH", dir)

	results, err := Check(context.Background(), Sbatch)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Status)
	assert.Equal(t, "23.02.7", results[0].Version)
}

func TestCheckOutdated(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "sbatch", "slurm 17.11.0")
	t.Setenv("PATH", dir)

	results, err := Check(context.Background(), Sbatch)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMissingDependency, errors.CodeOf(err))
	assert.Equal(t, "outdated", results[0].Status)
}

func TestCheckUnparsableVersionIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "sbatch", "no version here")
	t.Setenv("PATH", dir)

	results, err := Check(context.Background(), Sbatch)
	require.NoError(t, err)
	assert.Equal(t, "unknown", results[0].Status)
}

func TestCheckNoVersionPattern(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "mytool", "")
	t.Setenv("PATH", dir)

	results, err := Check(context.Background(), Tool{Name: "mytool"})
	require.NoError(t, err)
	assert.Equal(t, "ok", results[0].Status)
}

func TestCheckMultipleTools(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "git", "git version 2.39.2")
	t.Setenv("PATH", dir)

	results, err := Check(context.Background(), Git,
		Tool{Name: "gone", Min: version.Version{Major: 1}})
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ok", results[0].Status)
	assert.Equal(t, "missing", results[1].Status)
	assert.Contains(t, err.Error(), "gone")
	assert.NotContains(t, err.Error(), "git (")
}
