package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/containerd/containerd/log"
	"gopkg.in/yaml.v2"
)

var Synb0ConfigInst Synb0Config

// NewSynb0Config returns a variable of type Synb0Config, used in many other functions and the first encountered error.
// The configPath argument takes precedence over the SYNB0CONFIGPATH env, which in turn wins over the default path.
func NewSynb0Config(configPath string) (Synb0Config, error) {
	if !Synb0ConfigInst.set {
		var path string

		if configPath != "" {
			path = configPath
		} else if os.Getenv("SYNB0CONFIGPATH") != "" {
			path = os.Getenv("SYNB0CONFIGPATH")
		} else {
			path = "/etc/synb0/Synb0Config.yaml"
		}

		if _, err := os.Stat(path); err != nil {
			log.G(context.Background()).Error("File " + path + " doesn't exist. You can set a custom path by exporting SYNB0CONFIGPATH. Exiting...")
			return Synb0Config{}, err
		}

		log.G(context.Background()).Info("Loading Synb0 config from " + path)
		yfile, err := os.ReadFile(path)
		if err != nil {
			log.G(context.Background()).Error("Error opening config file, exiting...")
			return Synb0Config{}, err
		}
		err = yaml.Unmarshal(yfile, &Synb0ConfigInst)
		if err != nil {
			log.G(context.Background()).Error("Error unmarshalling config file, exiting...")
			return Synb0Config{}, err
		}

		if os.Getenv("BSUBPATH") != "" {
			Synb0ConfigInst.BsubPath = os.Getenv("BSUBPATH")
		}

		if os.Getenv("BJOBSPATH") != "" {
			Synb0ConfigInst.BjobsPath = os.Getenv("BJOBSPATH")
		}

		if os.Getenv("BKILLPATH") != "" {
			Synb0ConfigInst.BkillPath = os.Getenv("BKILLPATH")
		}

		if os.Getenv("SINGULARITYPATH") != "" {
			Synb0ConfigInst.SingularityPath = os.Getenv("SINGULARITYPATH")
		}

		if os.Getenv("SYNB0CONTAINERSDIR") != "" {
			path = os.Getenv("SYNB0CONTAINERSDIR")
			if _, err := os.Stat(path); err != nil {
				log.G(context.Background()).Error("Directory " + path + " doesn't exist. You can set a custom path by exporting SYNB0CONTAINERSDIR. Exiting...")
				return Synb0Config{}, err
			}
			Synb0ConfigInst.ContainersDir = path
		}

		if os.Getenv("SYNB0LOGDIR") != "" {
			Synb0ConfigInst.LogDir = os.Getenv("SYNB0LOGDIR")
		}

		if os.Getenv("TMPDIR") != "" {
			Synb0ConfigInst.TmpDir = os.Getenv("TMPDIR")
		}

		applyDefaults(&Synb0ConfigInst)

		Synb0ConfigInst.set = true
	}
	return Synb0ConfigInst, nil
}

// applyDefaults fills the fields a minimal config file can leave out.
func applyDefaults(c *Synb0Config) {
	if c.BsubPath == "" {
		c.BsubPath = "bsub"
	}
	if c.BjobsPath == "" {
		c.BjobsPath = "bjobs"
	}
	if c.BkillPath == "" {
		c.BkillPath = "bkill"
	}
	if c.SingularityPath == "" {
		c.SingularityPath = "singularity"
	}
	if c.CondaPath == "" {
		c.CondaPath = "conda"
	}
	if c.CondaEnv == "" {
		c.CondaEnv = "synb0"
	}
	if c.BashPath == "" {
		c.BashPath = "/bin/bash"
	}
	if c.ContainerVersion == "" {
		c.ContainerVersion = "latest"
	}
	if c.TmpDir == "" {
		c.TmpDir = "/tmp"
	}
	if c.DataRootFolder == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.DataRootFolder = filepath.Join(home, ".synb0-lsf") + "/"
	}
	if c.Cores == 0 {
		c.Cores = 1
	}
	if c.MemoryMB == 0 {
		c.MemoryMB = 8192
	}
	if c.WallTime == "" {
		c.WallTime = "24:00"
	}
}
