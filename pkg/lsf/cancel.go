package lsf

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/containerd/containerd/log"

	"go.opentelemetry.io/otel/attribute"
	trace "go.opentelemetry.io/otel/trace"
)

// Cancel checks if a job has not yet finished and, in case, calls the bkill
// command to abort the job execution. It then removes the job from the main
// JIDs structure and all the related files on the disk.
// Returns the first encountered error.
func (h *Handler) Cancel(jobName string) error {
	log.G(h.Ctx).Info("- Deleting job " + jobName)
	span := trace.SpanFromContext(h.Ctx)

	if !checkIfJidExists(h.JIDs, jobName) {
		return fmt.Errorf("unknown job %s", jobName)
	}

	jid := (*h.JIDs)[jobName].JID
	if _, err := h.statusFromJobDirTerminal(jobName); err != nil {
		// Not terminal yet, ask LSF to kill it.
		_, err := exec.Command(h.Config.BkillPath, jid).Output()
		if err != nil {
			log.G(h.Ctx).Error(err)
			return err
		}
		log.G(h.Ctx).Info("- Killed job ", jid)
	}
	removeJID(jobName, h.JIDs)

	span.SetAttributes(
		attribute.String("cancel.job.name", jobName),
		attribute.String("cancel.jid", jid),
	)

	jobDir := filepath.Join(h.Config.DataRootFolder, jobName)
	errFirstAttempt := os.RemoveAll(jobDir)
	if errFirstAttempt != nil {
		// The first removal can fail while the LSF log is still being flushed,
		// retry once after a grace period.
		log.G(h.Ctx).Debug("Attempt 1 of deletion failed, retrying. Error: ", errFirstAttempt)
		time.Sleep(5 * time.Second)

		errSecondAttempt := os.RemoveAll(jobDir)
		if errSecondAttempt != nil {
			log.G(h.Ctx).Error("Attempt 2 of deletion failed: ", errSecondAttempt)
			span.AddEvent("Failed to delete LSF job " + jid)
			return errSecondAttempt
		}
	}
	span.AddEvent("LSF job " + jid + " successfully deleted")

	return nil
}

// CancelAll cancels every tracked job, returning the first encountered error
// after attempting all of them.
func (h *Handler) CancelAll() error {
	var firstErr error
	for jobName := range *h.JIDs {
		if err := h.Cancel(jobName); err != nil {
			log.G(h.Ctx).Error(err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// statusFromJobDirTerminal returns the recorded exit code if the job already
// wrote its job.status file, or an error if it hasn't.
func (h *Handler) statusFromJobDirTerminal(jobName string) (int32, error) {
	jobDir := filepath.Join(h.Config.DataRootFolder, jobName)
	return getExitCode(h.Ctx, jobDir)
}
