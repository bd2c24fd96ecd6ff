package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	c := Synb0Config{}
	applyDefaults(&c)

	assert.Equal(t, "bsub", c.BsubPath)
	assert.Equal(t, "bjobs", c.BjobsPath)
	assert.Equal(t, "bkill", c.BkillPath)
	assert.Equal(t, "singularity", c.SingularityPath)
	assert.Equal(t, "conda", c.CondaPath)
	assert.Equal(t, "synb0", c.CondaEnv)
	assert.Equal(t, "/bin/bash", c.BashPath)
	assert.Equal(t, "latest", c.ContainerVersion)
	assert.Equal(t, "/tmp", c.TmpDir)
	assert.NotEmpty(t, c.DataRootFolder)
	assert.Equal(t, 1, c.Cores)
	assert.Equal(t, 8192, c.MemoryMB)
	assert.Equal(t, "24:00", c.WallTime)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	c := Synb0Config{
		BsubPath: "/opt/lsf/bin/bsub",
		Queue:    "bsc_normal",
		Cores:    8,
		MemoryMB: 32768,
		WallTime: "04:00",
	}
	applyDefaults(&c)

	assert.Equal(t, "/opt/lsf/bin/bsub", c.BsubPath)
	assert.Equal(t, "bsc_normal", c.Queue)
	assert.Equal(t, 8, c.Cores)
	assert.Equal(t, 32768, c.MemoryMB)
	assert.Equal(t, "04:00", c.WallTime)
}

// The config is a process wide singleton, so the load path is exercised once.
func TestNewSynb0Config(t *testing.T) {
	dir := t.TempDir()
	containersDir := filepath.Join(dir, "containers")
	require.NoError(t, os.MkdirAll(containersDir, 0755))

	configFile := filepath.Join(dir, "Synb0Config.yaml")
	yamlDoc := "" +
		"Queue: bsc_short\n" +
		"Cores: 4\n" +
		"MemoryMB: 16384\n" +
		"BidsScriptPath: /opt/synb0/bidsSynB0.py\n"
	require.NoError(t, os.WriteFile(configFile, []byte(yamlDoc), 0644))

	t.Setenv("BSUBPATH", "/usr/local/bin/bsub")
	t.Setenv("SYNB0CONTAINERSDIR", containersDir)

	conf, err := NewSynb0Config(configFile)
	require.NoError(t, err)

	assert.Equal(t, "bsc_short", conf.Queue)
	assert.Equal(t, 4, conf.Cores)
	assert.Equal(t, 16384, conf.MemoryMB)
	assert.Equal(t, "/opt/synb0/bidsSynB0.py", conf.BidsScriptPath)
	assert.Equal(t, "/usr/local/bin/bsub", conf.BsubPath)
	assert.Equal(t, containersDir, conf.ContainersDir)
	assert.Equal(t, "bjobs", conf.BjobsPath)
	assert.Equal(t, "latest", conf.ContainerVersion)

	again, err := NewSynb0Config("/nonexistent/path.yaml")
	require.NoError(t, err)
	assert.Equal(t, conf, again)
}

func TestNewSynb0ConfigMissingFile(t *testing.T) {
	if Synb0ConfigInst.set {
		t.Skip("config singleton already loaded")
	}
	_, err := NewSynb0Config(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
