package lsf

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/containerd/log"
)

// logsPollInterval is how often the follow loop re-checks the log file.
const logsPollInterval = 4 * time.Second

// findLogFile locates the LSF log of a job under LogDir. The %J placeholder in
// the #BSUB -o directive expands to the job ID, so the tracked JID matches the
// file exactly. Untracked jobs fall back to the newest file for that job name.
func (h *Handler) findLogFile(jobName string) (string, error) {
	if jid, ok := (*h.JIDs)[jobName]; ok {
		path := filepath.Join(h.Config.LogDir, jobName+"_"+jid.JID+".log")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	matches, err := filepath.Glob(filepath.Join(h.Config.LogDir, jobName+"_*.log"))
	if err != nil {
		return "", err
	}
	var newest string
	var newestMod time.Time
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = match
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no log file for job %s in %s", jobName, h.Config.LogDir)
	}
	return newest, nil
}

// Logs writes the LSF log of a job to w. In follow mode it keeps polling the
// file and streams appended content until the job writes its job.status file,
// which indicates the end of the job.
func (h *Handler) Logs(jobName string, follow bool, w io.Writer) error {
	logPath, err := h.findLogFile(jobName)
	if err != nil && !follow {
		log.G(h.Ctx).Error(err)
		return err
	}

	if !follow {
		f, err := os.Open(logPath)
		if err != nil {
			log.G(h.Ctx).Error(err)
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	}

	statusFilePath := filepath.Join(h.Config.DataRootFolder, jobName, "job.status")
	var offset int64

	for {
		if logPath == "" {
			logPath, _ = h.findLogFile(jobName)
		}
		if logPath != "" {
			written, err := copyFrom(w, logPath, offset)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					log.G(h.Ctx).Error(err)
					return err
				}
				// LSF writes the log when the job starts, keep waiting.
				log.G(h.Ctx).Debug("Log file " + logPath + " does not exist yet, sleeping before retrying...")
			}
			offset += written
		} else {
			log.G(h.Ctx).Debug("No log file for " + jobName + " yet, sleeping before retrying...")
		}

		if _, err := os.Stat(statusFilePath); err == nil {
			// Job ended, drain whatever arrived after the last read and stop.
			if logPath != "" {
				if _, err := copyFrom(w, logPath, offset); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			return nil
		}

		time.Sleep(logsPollInterval)
	}
}

// copyFrom writes the content of path starting at offset to w and returns how
// many bytes were copied.
func copyFrom(w io.Writer, path string, offset int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	return io.Copy(w, f)
}
