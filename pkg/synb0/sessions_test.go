package synb0

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSessionList(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewSessionStripsPrefixes(t *testing.T) {
	s := NewSession("sub-01", "ses-MR1")
	assert.Equal(t, "01", s.Participant)
	assert.Equal(t, "MR1", s.Session)

	s = NewSession("02", "MR2")
	assert.Equal(t, "02", s.Participant)
	assert.Equal(t, "MR2", s.Session)
}

func TestSessionJobName(t *testing.T) {
	s := NewSession("01", "MR1")
	assert.Equal(t, "synb0_sub-01_ses-MR1", s.JobName())
}

func TestReadSessionList(t *testing.T) {
	path := writeSessionList(t, `# cohort exported 2024-05-02
sub-01,ses-MR1
02, MR2

sub-03,ses-MR1
`)

	sessions, err := ReadSessionList(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, Session{Participant: "01", Session: "MR1"}, sessions[0])
	assert.Equal(t, Session{Participant: "02", Session: "MR2"}, sessions[1])
	assert.Equal(t, Session{Participant: "03", Session: "MR1"}, sessions[2])
}

func TestReadSessionListBadRecord(t *testing.T) {
	path := writeSessionList(t, "sub-01\n")
	_, err := ReadSessionList(context.Background(), path)
	assert.Error(t, err)

	path = writeSessionList(t, "sub-01,\n")
	_, err = ReadSessionList(context.Background(), path)
	assert.Error(t, err)
}

func TestReadSessionListEmpty(t *testing.T) {
	path := writeSessionList(t, "# nothing here\n\n")
	_, err := ReadSessionList(context.Background(), path)
	assert.Error(t, err)
}

func TestReadSessionListMissingFile(t *testing.T) {
	_, err := ReadSessionList(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
