package lsf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	execute "github.com/alexellis/go-execute/pkg/v1"
	"github.com/containerd/containerd/log"
)

// mapBjobsState reduces the LSF job states to the lifecycle reported by status.
func mapBjobsState(stat string) JobState {
	switch strings.ToUpper(strings.TrimSpace(stat)) {
	case "PEND", "WAIT", "PROV":
		return StatePending
	case "RUN", "USUSP", "SSUSP", "PSUSP":
		return StateRunning
	case "DONE":
		return StateDone
	case "EXIT", "ZOMBI":
		return StateFailed
	default:
		return StateUnknown
	}
}

// parseBjobsLine parses one "STAT,EXIT_CODE" record as produced by
// bjobs -noheader -o "stat exit_code delimiter=','".
func parseBjobsLine(line string) (JobState, int32, error) {
	fields := strings.SplitN(strings.TrimSpace(line), ",", 2)
	if len(fields) != 2 {
		return StateUnknown, 0, fmt.Errorf("unexpected bjobs output: %q", line)
	}
	state := mapBjobsState(fields[0])
	exitCode := int32(0)
	if code := strings.TrimSpace(fields[1]); code != "" && code != "-" {
		parsed, err := strconv.Atoi(code)
		if err != nil {
			return state, 0, fmt.Errorf("unexpected bjobs exit code %q: %w", code, err)
		}
		exitCode = int32(parsed)
	}
	return state, exitCode, nil
}

// getExitCode returns the exit code read from the job.status file of a job
// directory. The file is written by the generated batch script, so it is the
// fallback once LSF no longer reports the job.
func getExitCode(ctx context.Context, jobDir string) (int32, error) {
	statusFilePath := filepath.Join(jobDir, "job.status")
	exitCode, err := os.ReadFile(statusFilePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.G(ctx).Error(err)
		}
		return 0, err
	}
	exitCodeInt, err := strconv.Atoi(strings.TrimSpace(string(exitCode)))
	if err != nil {
		log.G(ctx).Error(err)
		return 0, err
	}
	return int32(exitCodeInt), nil
}

// statusFromJobDir reconstructs a terminal state from the job.status file.
// A missing file means the job disappeared without writing a status, which is
// what happens to killed jobs.
func (h *Handler) statusFromJobDir(jobName string) (JobState, int32) {
	jobDir := filepath.Join(h.Config.DataRootFolder, jobName)
	exitCode, err := getExitCode(h.Ctx, jobDir)
	if err != nil {
		return StateUnknown, 0
	}
	if exitCode == 0 {
		return StateDone, 0
	}
	return StateFailed, exitCode
}

// Status queries bjobs for every tracked job and returns one JobStatus per job,
// sorted by job name. Jobs LSF has forgotten fall back to the job.status file.
func (h *Handler) Status() ([]JobStatus, error) {
	var statuses []JobStatus

	for jobName, jid := range *h.JIDs {
		status := JobStatus{
			JobName:     jobName,
			Participant: jid.Participant,
			Session:     jid.Session,
			JID:         jid.JID,
			State:       StateUnknown,
		}

		// No shell here, the format specifier has to reach bjobs as one argument.
		task := execute.ExecTask{
			Command: h.Config.BjobsPath,
			Args:    []string{"-noheader", "-o", "stat exit_code delimiter=','", jid.JID},
		}
		execReturn, err := task.Execute()
		if err != nil {
			log.G(h.Ctx).Error("Unable to run bjobs: ", err)
			return nil, err
		}

		stdout := strings.TrimSpace(execReturn.Stdout)
		if execReturn.ExitCode != 0 || stdout == "" || strings.Contains(execReturn.Stderr, "not found") {
			// LSF forgets finished jobs after CLEAN_PERIOD, use the status file.
			log.G(h.Ctx).Debug("bjobs doesn't know job " + jid.JID + ", falling back to job.status")
			status.State, status.ExitCode = h.statusFromJobDir(jobName)
		} else {
			state, exitCode, err := parseBjobsLine(stdout)
			if err != nil {
				log.G(h.Ctx).Error(err)
				return nil, err
			}
			status.State = state
			status.ExitCode = exitCode
		}

		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].JobName < statuses[j].JobName
	})

	return statuses, nil
}
