package lsf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/containerd/containerd/log"

	"github.com/picsl-hpc/synb0-lsf/pkg/synb0"
)

const submitTimeFormat = "2006-01-02 15:04:05.999999999 -0700 MST"

var jidRe = regexp.MustCompile(`Job <(?P<jid>\d+)> is submitted`)

// parsingTimeFromString parses time from a string and returns it into a variable of type time.Time.
// The format time can be specified in the 2nd argument.
func parsingTimeFromString(ctx context.Context, stringTime string, timestampFormat string) (time.Time, error) {
	parsedTime, err := time.Parse(timestampFormat, stringTime)
	if err != nil {
		log.G(ctx).Error(err)
		return time.Time{}, err
	}
	return parsedTime, nil
}

// CreateDirectories is just a function to be sure directories exist at runtime
func (h *Handler) CreateDirectories() error {
	for _, path := range []string{h.Config.DataRootFolder, h.Config.LogDir} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				err = os.MkdirAll(path, os.ModePerm)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// LoadJIDs loads Job IDs into the main JIDs struct from files in the root folder.
// It's useful when the tool was restarted while jobs were still queued or running.
// Return only error in case of failure
func (h *Handler) LoadJIDs() error {
	path := h.Config.DataRootFolder

	dir, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Nothing was submitted yet.
			return nil
		}
		log.G(h.Ctx).Error(err)
		return err
	}
	defer dir.Close()

	entries, err := dir.ReadDir(0)
	if err != nil {
		log.G(h.Ctx).Error(err)
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobDir := filepath.Join(path, entry.Name())

		JID, err := os.ReadFile(filepath.Join(jobDir, "JobID.jid"))
		if err != nil {
			log.G(h.Ctx).Debug(err)
			continue
		}
		participant, err := os.ReadFile(filepath.Join(jobDir, "Participant.sub"))
		if err != nil {
			log.G(h.Ctx).Debug(err)
			continue
		}
		session, err := os.ReadFile(filepath.Join(jobDir, "Session.ses"))
		if err != nil {
			log.G(h.Ctx).Debug(err)
			continue
		}

		submitTime := time.Time{}
		submitTimeString, err := os.ReadFile(filepath.Join(jobDir, "SubmittedAt.time"))
		if err != nil {
			log.G(h.Ctx).Debug(err)
		} else {
			submitTime, err = parsingTimeFromString(h.Ctx, string(submitTimeString), submitTimeFormat)
			if err != nil {
				log.G(h.Ctx).Debug(err)
			}
		}

		(*h.JIDs)[entry.Name()] = &JidStruct{
			JobName:     entry.Name(),
			Participant: string(participant),
			Session:     string(session),
			JID:         string(JID),
			SubmitTime:  submitTime,
		}
	}

	return nil
}

// handleJid parses the bsub output and creates the JID, participant and session
// files in the job directory, so status can be restored at startup. It also adds
// the JID to the JIDs main structure.
// The output parameter must be the output of the BsubSubmit function.
// Return the first encountered error.
func handleJid(ctx context.Context, session synb0.Session, JIDs *map[string]*JidStruct, output string, jobDir string) (string, error) {
	jid := jidRe.FindStringSubmatch(output)
	if jid == nil {
		err := errors.New("unable to parse job ID from bsub output: " + output)
		log.G(ctx).Error(err)
		return "", err
	}

	files := map[string]string{
		"JobID.jid":        jid[1],
		"Participant.sub":  session.Participant,
		"Session.ses":      session.Session,
		"SubmittedAt.time": time.Now().Format(submitTimeFormat),
	}
	for name, content := range files {
		err := os.WriteFile(filepath.Join(jobDir, name), []byte(content), 0644)
		if err != nil {
			log.G(ctx).Error("Can't create " + name + " in " + jobDir)
			return "", err
		}
	}

	jobName := session.JobName()
	(*JIDs)[jobName] = &JidStruct{
		JobName:     jobName,
		Participant: session.Participant,
		Session:     session.Session,
		JID:         jid[1],
		SubmitTime:  time.Now(),
	}
	log.G(ctx).Info("Job ID is: " + jid[1])

	return jid[1], nil
}

// removeJID deletes a JID from the structure
func removeJID(jobName string, JIDs *map[string]*JidStruct) {
	delete(*JIDs, jobName)
}

// checkIfJidExists checks if a JID is in the main JIDs struct
func checkIfJidExists(JIDs *map[string]*JidStruct, jobName string) bool {
	_, ok := (*JIDs)[jobName]
	return ok
}
