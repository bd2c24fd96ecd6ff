package lsf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	execute "github.com/alexellis/go-execute/pkg/v1"
	"github.com/containerd/containerd/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	trace "go.opentelemetry.io/otel/trace"

	"github.com/picsl-hpc/synb0-lsf/pkg/config"
	"github.com/picsl-hpc/synb0-lsf/pkg/synb0"
)

// SubmitOptions carries the per-invocation settings of the submit command.
type SubmitOptions struct {
	BidsDataset string
	Sessions    []synb0.Session
	// ImagePath overrides version resolution when set.
	ImagePath string
	Version   string
	Threads   int
	// ExtraArgs are forwarded verbatim to the BIDS wrapper script.
	ExtraArgs []string
}

// Submitted is the result of one successful bsub call.
type Submitted struct {
	Session synb0.Session
	JID     string
}

// buildBidsCommand assembles the conda run invocation of the external BIDS
// wrapper script for one session.
func buildBidsCommand(conf config.Synb0Config, imagePath string, dataset string, session synb0.Session, threads int, extraArgs []string) []string {
	cmd := []string{
		conf.CondaPath, "run", "-n", conf.CondaEnv,
		"python", conf.BidsScriptPath,
		"-c", imagePath,
		"--bids-dataset", dataset,
		"--participant-label", session.Participant,
		"--session-label", session.Session,
		"--num-threads", strconv.Itoa(threads),
	}
	cmd = append(cmd, extraArgs...)
	return cmd
}

// produceJobScript generates the LSF batch script for one session under the job
// directory. The script records its own exit code to job.status so the status
// operation still works after LSF has forgotten the job.
// It returns the path to the generated script and the first encountered error.
func produceJobScript(ctx context.Context, conf config.Synb0Config, jobDir string, jobName string, command []string) (string, error) {
	err := os.MkdirAll(jobDir, os.ModePerm)
	if err != nil {
		log.G(ctx).Error(err)
		return "", err
	}
	log.G(ctx).Info("-- Created directory " + jobDir)

	scriptPath := filepath.Join(jobDir, "job.lsf")
	f, err := os.Create(scriptPath)
	if err != nil {
		log.G(ctx).Error("Unable to create file " + scriptPath)
		return "", err
	}
	defer f.Close()

	err = os.Chmod(scriptPath, 0774)
	if err != nil {
		log.G(ctx).Error("Unable to chmod file " + scriptPath)
		return "", err
	}

	var directives strings.Builder
	directives.WriteString("#BSUB -J " + jobName)
	directives.WriteString("\n#BSUB -o " + filepath.Join(conf.LogDir, jobName+"_%J.log"))
	if conf.Queue != "" {
		directives.WriteString("\n#BSUB -q " + conf.Queue)
	}
	directives.WriteString("\n#BSUB -n " + strconv.Itoa(conf.Cores))
	directives.WriteString("\n#BSUB -M " + strconv.Itoa(conf.MemoryMB))
	directives.WriteString("\n#BSUB -R \"rusage[mem=" + strconv.Itoa(conf.MemoryMB) + "] span[hosts=1]\"")
	if conf.WallTime != "" {
		directives.WriteString("\n#BSUB -W " + conf.WallTime)
	}

	prefix := ""
	if conf.CommandPrefix != "" {
		prefix = "\n" + conf.CommandPrefix
	}

	var escaped []string
	for _, arg := range command {
		// The BIDS dataset path and the passthrough args come from the user, so
		// escaping is important to avoid space, quote issues and injection vulnerabilities.
		escaped = append(escaped, shellescape.Quote(arg))
	}

	var stringToBeWritten strings.Builder
	stringToBeWritten.WriteString("#!" + conf.BashPath + "\n")
	stringToBeWritten.WriteString(directives.String())
	stringToBeWritten.WriteString("\n")
	stringToBeWritten.WriteString(prefix)
	stringToBeWritten.WriteString("\n\n")
	stringToBeWritten.WriteString(strings.Join(escaped, " "))
	stringToBeWritten.WriteString("\nstatus=$?")
	stringToBeWritten.WriteString("\necho $status > " + filepath.Join(jobDir, "job.status"))
	stringToBeWritten.WriteString("\nexit $status\n")

	_, err = f.WriteString(stringToBeWritten.String())
	if err != nil {
		log.G(ctx).Error(err)
		return "", err
	}
	log.G(ctx).Debug("---- Written job.lsf file")

	return scriptPath, nil
}

// BsubSubmit submits the script provided in the path argument to the LSF queue.
// bsub reads the script on stdin, so the call goes through a shell redirect.
// At this point, it's up to the LSF scheduler to manage the job.
// Returns the output of the bsub command and the first encountered error.
func BsubSubmit(ctx context.Context, conf config.Synb0Config, path string) (string, error) {
	log.G(ctx).Info("- Submitting LSF job")
	shell := execute.ExecTask{
		Command: "sh",
		Args:    []string{"-c", conf.BsubPath + " < " + shellescape.Quote(path)},
		Shell:   true,
	}

	execReturn, err := shell.Execute()
	if err != nil {
		log.G(ctx).Error("Unable to run bsub for " + path)
		return "", err
	}
	execReturn.Stdout = strings.ReplaceAll(execReturn.Stdout, "\n", "")

	if execReturn.ExitCode != 0 {
		log.G(ctx).Error("Could not run bsub: " + execReturn.Stderr)
		return "", errors.New(execReturn.Stderr)
	}
	log.G(ctx).Debug("Job submitted")
	return execReturn.Stdout, nil
}

// Submit queues one LSF job per session. Sessions already tracked are skipped
// with a warning, jobs that fail to submit abort the loop and leave the
// already-submitted jobs queued.
func (h *Handler) Submit(opts SubmitOptions) ([]Submitted, error) {
	start := time.Now().UnixMicro()
	tracer := otel.Tracer("synb0-lsf")
	spanCtx, span := tracer.Start(h.Ctx, "Submit", trace.WithAttributes(
		attribute.Int64("start.timestamp", start),
		attribute.String("submit.dataset", opts.BidsDataset),
		attribute.Int("submit.sessions", len(opts.Sessions)),
	))
	defer span.End()

	// Both are needed to build a working script, failing here beats a job that
	// dies on the cluster with no log to read.
	if h.Config.BidsScriptPath == "" {
		return nil, fmt.Errorf("BidsScriptPath is not configured, set it in the config file")
	}
	if h.Config.LogDir == "" {
		return nil, fmt.Errorf("LogDir is not configured, set it in the config file")
	}

	info, err := os.Stat(opts.BidsDataset)
	if err != nil {
		log.G(h.Ctx).Error("BIDS dataset " + opts.BidsDataset + " doesn't exist")
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("BIDS dataset %s is not a directory", opts.BidsDataset)
	}
	dataset, err := filepath.Abs(opts.BidsDataset)
	if err != nil {
		return nil, err
	}

	if err := h.CreateDirectories(); err != nil {
		log.G(h.Ctx).Error(err)
		return nil, err
	}

	imagePath := opts.ImagePath
	if imagePath == "" {
		version := opts.Version
		if version == "" {
			version = h.Config.ContainerVersion
		}
		image, err := synb0.ResolveImage(spanCtx, h.Config.ContainersDir, version)
		if err != nil {
			return nil, err
		}
		imagePath = image.Path
	} else if _, err := os.Stat(imagePath); err != nil {
		log.G(h.Ctx).Error("Container image " + imagePath + " doesn't exist")
		return nil, err
	}

	threads := opts.Threads
	if threads < 1 {
		threads = h.Config.Cores
	}

	var submitted []Submitted
	for _, session := range opts.Sessions {
		jobName := session.JobName()
		if checkIfJidExists(h.JIDs, jobName) {
			log.G(h.Ctx).Warning("Job " + jobName + " is already tracked with JID " + (*h.JIDs)[jobName].JID + ", skipping. Cancel it first to resubmit.")
			continue
		}

		log.G(h.Ctx).Info("- Beginning script generation for " + jobName)
		jobDir := filepath.Join(h.Config.DataRootFolder, jobName)

		command := buildBidsCommand(h.Config, imagePath, dataset, session, threads, opts.ExtraArgs)
		scriptPath, err := produceJobScript(spanCtx, h.Config, jobDir, jobName, command)
		if err != nil {
			os.RemoveAll(jobDir)
			return submitted, err
		}

		out, err := BsubSubmit(spanCtx, h.Config, scriptPath)
		if err != nil {
			span.AddEvent("Failed to submit the LSF job for " + jobName)
			os.RemoveAll(jobDir)
			return submitted, err
		}
		log.G(h.Ctx).Info(out)

		jid, err := handleJid(spanCtx, session, h.JIDs, out, jobDir)
		if err != nil {
			os.RemoveAll(jobDir)
			return submitted, err
		}

		span.AddEvent("LSF job successfully submitted with ID "+jid, trace.WithAttributes(
			attribute.String("submit.job.name", jobName),
			attribute.String("submit.job.jid", jid),
		))
		submitted = append(submitted, Submitted{Session: session, JID: jid})
	}

	return submitted, nil
}
