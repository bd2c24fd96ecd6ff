package synb0

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picsl-hpc/synb0-lsf/pkg/config"
)

func stageInputDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("nifti"), 0644))
	}
	return dir
}

func TestValidateInputDir(t *testing.T) {
	dir := stageInputDir(t, "T1.nii.gz", "b0.nii.gz")
	assert.NoError(t, ValidateInputDir(context.Background(), dir))
}

func TestValidateInputDirMissingFiles(t *testing.T) {
	dir := stageInputDir(t, "T1.nii.gz")
	assert.Error(t, ValidateInputDir(context.Background(), dir))

	dir = stageInputDir(t, "b0.nii.gz")
	assert.Error(t, ValidateInputDir(context.Background(), dir))
}

func TestValidateInputDirNotADirectory(t *testing.T) {
	dir := stageInputDir(t, "T1.nii.gz")
	assert.Error(t, ValidateInputDir(context.Background(), filepath.Join(dir, "T1.nii.gz")))
	assert.Error(t, ValidateInputDir(context.Background(), filepath.Join(dir, "missing")))
}

func TestBuildRunArgs(t *testing.T) {
	opts := RunOptions{NoTopup: true, Stripped: true, ExtraArgs: []string{"--motion-corrected"}}
	args := BuildRunArgs("/data/in", "/data/out", "/scratch/synb0.x", "/containers/synb0-disco-v3.1.0.sif", opts)

	assert.Equal(t, []string{
		"run", "--cleanenv", "--no-home",
		"-B", "/data/in:/INPUTS",
		"-B", "/data/out:/OUTPUTS",
		"-B", "/scratch/synb0.x:/tmp",
		"/containers/synb0-disco-v3.1.0.sif",
		"--notopup", "--stripped", "--motion-corrected",
	}, args)
}

func TestBuildRunArgsTopup(t *testing.T) {
	args := BuildRunArgs("/in", "/out", "/tmp/x", "/img.sif", RunOptions{})
	assert.NotContains(t, args, "--notopup")
	assert.NotContains(t, args, "--stripped")
}

// A ContainerVersion pinned in the config must win over "latest" when the
// invocation doesn't name a version.
func TestRunResolvesConfiguredContainerVersion(t *testing.T) {
	containersDir := writeContainersDir(t,
		"synb0-disco-v2.0.0.sif",
		"synb0-disco-v3.0.0.sif",
	)

	argvFile := filepath.Join(t.TempDir(), "singularity.argv")
	fakeSingularity := filepath.Join(t.TempDir(), "singularity")
	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > " + argvFile + "\n"
	require.NoError(t, os.WriteFile(fakeSingularity, []byte(script), 0755))

	runner := &Runner{
		Config: config.Synb0Config{
			SingularityPath:  fakeSingularity,
			ContainersDir:    containersDir,
			ContainerVersion: "2.0.0",
			TmpDir:           t.TempDir(),
		},
		Ctx: context.Background(),
	}

	opts := RunOptions{
		InputDir:  stageInputDir(t, "T1.nii.gz", "b0.nii.gz"),
		OutputDir: filepath.Join(t.TempDir(), "out"),
		NoTopup:   true,
	}
	require.NoError(t, runner.Run(opts))

	raw, err := os.ReadFile(argvFile)
	require.NoError(t, err)
	argv := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	assert.Contains(t, argv, filepath.Join(containersDir, "synb0-disco-v2.0.0.sif"))
	assert.NotContains(t, argv, filepath.Join(containersDir, "synb0-disco-v3.0.0.sif"))
}

func TestContainerEnv(t *testing.T) {
	env := ContainerEnv(4)
	assert.Contains(t, env, "SINGULARITYENV_TMPDIR=/tmp")
	assert.Contains(t, env, "SINGULARITYENV_OMP_NUM_THREADS=4")
	assert.Contains(t, env, "SINGULARITYENV_ITK_GLOBAL_DEFAULT_NUMBER_OF_THREADS=4")
}
