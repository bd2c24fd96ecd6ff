package synb0

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	execute "github.com/alexellis/go-execute/pkg/v1"
	"github.com/containerd/containerd/log"
	"github.com/google/uuid"

	"github.com/picsl-hpc/synb0-lsf/pkg/config"
)

// Runner invokes the Synb0-DISCO container directly on the local host.
type Runner struct {
	Config config.Synb0Config
	Ctx    context.Context
}

// RunOptions carries the per-invocation settings of the run command.
type RunOptions struct {
	InputDir  string
	OutputDir string
	// ImagePath overrides version resolution when set.
	ImagePath string
	Version   string
	Threads   int
	Stripped  bool
	NoTopup   bool
	// ExtraArgs are forwarded verbatim to the container entry point.
	ExtraArgs []string
}

// ValidateInputDir checks that the directory holds the T1.nii.gz and b0.nii.gz
// files the container expects under /INPUTS.
func ValidateInputDir(ctx context.Context, inputDir string) error {
	info, err := os.Stat(inputDir)
	if err != nil {
		log.G(ctx).Error("Input directory " + inputDir + " doesn't exist")
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("input path %s is not a directory", inputDir)
	}
	for _, name := range []string{"T1.nii.gz", "b0.nii.gz"} {
		if _, err := os.Stat(filepath.Join(inputDir, name)); err != nil {
			log.G(ctx).Error("Required input file " + name + " not found in " + inputDir)
			return err
		}
	}
	return nil
}

// ContainerEnv returns the SINGULARITYENV_ variables the container needs,
// appended to the current environment. TMPDIR points at the /tmp bind and the
// thread counts cap OMP and ITK inside the container.
func ContainerEnv(threads int) []string {
	env := os.Environ()
	env = append(env, "SINGULARITYENV_TMPDIR=/tmp")
	env = append(env, "SINGULARITYENV_OMP_NUM_THREADS="+strconv.Itoa(threads))
	env = append(env, "SINGULARITYENV_ITK_GLOBAL_DEFAULT_NUMBER_OF_THREADS="+strconv.Itoa(threads))
	return env
}

// BuildRunArgs assembles the singularity argument list for one invocation.
// Host paths in the binds must already be absolute.
func BuildRunArgs(inputDir string, outputDir string, scratchDir string, imagePath string, opts RunOptions) []string {
	args := []string{
		"run", "--cleanenv", "--no-home",
		"-B", inputDir + ":/INPUTS",
		"-B", outputDir + ":/OUTPUTS",
		"-B", scratchDir + ":/tmp",
		imagePath,
	}
	if opts.NoTopup {
		args = append(args, "--notopup")
	}
	if opts.Stripped {
		args = append(args, "--stripped")
	}
	args = append(args, opts.ExtraArgs...)
	return args
}

// Run validates the inputs, stages a job-scoped scratch directory and execs
// singularity run with the INPUTS/OUTPUTS/tmp bind mounts. The scratch
// directory is removed when the container returns.
func (r *Runner) Run(opts RunOptions) error {
	if err := ValidateInputDir(r.Ctx, opts.InputDir); err != nil {
		return err
	}

	if err := os.MkdirAll(opts.OutputDir, os.ModePerm); err != nil {
		log.G(r.Ctx).Error(err)
		return err
	}

	imagePath := opts.ImagePath
	if imagePath == "" {
		version := opts.Version
		if version == "" {
			version = r.Config.ContainerVersion
		}
		image, err := ResolveImage(r.Ctx, r.Config.ContainersDir, version)
		if err != nil {
			return err
		}
		imagePath = image.Path
	} else if _, err := os.Stat(imagePath); err != nil {
		log.G(r.Ctx).Error("Container image " + imagePath + " doesn't exist")
		return err
	}

	// Symlink-resolved absolute paths, singularity binds resolve on the host side.
	inputDir, err := filepath.EvalSymlinks(opts.InputDir)
	if err != nil {
		return err
	}
	inputDir, err = filepath.Abs(inputDir)
	if err != nil {
		return err
	}
	outputDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return err
	}

	scratchDir := filepath.Join(r.Config.TmpDir, "synb0."+uuid.NewString())
	if err := os.MkdirAll(scratchDir, os.ModePerm); err != nil {
		log.G(r.Ctx).Error(err)
		return err
	}
	defer func() {
		if err := os.RemoveAll(scratchDir); err != nil {
			log.G(r.Ctx).Warning("Unable to remove scratch directory ", scratchDir, ": ", err)
		}
	}()
	log.G(r.Ctx).Info("-- Created scratch directory " + scratchDir)

	threads := opts.Threads
	if threads < 1 {
		threads = 1
	}

	args := BuildRunArgs(inputDir, outputDir, scratchDir, imagePath, opts)
	log.G(r.Ctx).Info("- Running: " + r.Config.SingularityPath + " " + fmt.Sprint(args))

	task := execute.ExecTask{
		Command:     r.Config.SingularityPath,
		Args:        args,
		Env:         ContainerEnv(threads),
		StreamStdio: true,
	}

	execResult, err := task.Execute()
	if err != nil {
		log.G(r.Ctx).Error(err)
		return err
	}
	if execResult.ExitCode != 0 {
		log.G(r.Ctx).Error("Container returned non-zero exit code: " + execResult.Stderr)
		return errors.New("synb0-disco container failed with exit code " + strconv.Itoa(execResult.ExitCode))
	}

	log.G(r.Ctx).Info("- Container finished, outputs in " + outputDir)
	return nil
}
