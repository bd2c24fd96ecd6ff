package synb0

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/containerd/containerd/log"
)

// Session identifies one subject/session pair of a BIDS dataset.
// Labels are stored without their sub-/ses- prefixes.
type Session struct {
	Participant string
	Session     string
}

// NewSession builds a Session from raw labels, stripping the BIDS entity
// prefixes when present.
func NewSession(participant string, session string) Session {
	return Session{
		Participant: strings.TrimPrefix(participant, "sub-"),
		Session:     strings.TrimPrefix(session, "ses-"),
	}
}

// JobName returns the LSF job name used for this session. It doubles as the
// bookkeeping directory name under DataRootFolder.
func (s Session) JobName() string {
	return "synb0_sub-" + s.Participant + "_ses-" + s.Session
}

// ReadSessionList parses a CSV of "subject,session" records, one per line.
// Blank lines and lines starting with # are skipped. The sub-/ses- prefixes
// are optional.
func ReadSessionList(ctx context.Context, path string) ([]Session, error) {
	f, err := os.Open(path)
	if err != nil {
		log.G(ctx).Error("Unable to open session list " + path)
		return nil, err
	}
	defer f.Close()

	var sessions []Session
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected \"subject,session\", got %q", path, lineNum, line)
		}
		participant := strings.TrimSpace(fields[0])
		session := strings.TrimSpace(fields[1])
		if participant == "" || session == "" {
			return nil, fmt.Errorf("%s:%d: empty subject or session in %q", path, lineNum, line)
		}
		sessions = append(sessions, NewSession(participant, session))
	}
	if err := scanner.Err(); err != nil {
		log.G(ctx).Error(err)
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("session list %s contains no sessions", path)
	}
	return sessions, nil
}
