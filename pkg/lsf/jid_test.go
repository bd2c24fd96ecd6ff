package lsf

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picsl-hpc/synb0-lsf/pkg/synb0"
)

func TestHandleJidParsesBsubOutput(t *testing.T) {
	jobDir := t.TempDir()
	jobIDs := make(map[string]*JidStruct)
	session := synb0.NewSession("01", "MR1")

	jid, err := handleJid(context.Background(), session, &jobIDs,
		"Job <271828> is submitted to queue <bsc_normal>.", jobDir)
	require.NoError(t, err)
	assert.Equal(t, "271828", jid)

	content, err := os.ReadFile(filepath.Join(jobDir, "JobID.jid"))
	require.NoError(t, err)
	assert.Equal(t, "271828", string(content))

	tracked, ok := jobIDs["synb0_sub-01_ses-MR1"]
	require.True(t, ok)
	assert.Equal(t, "271828", tracked.JID)
	assert.Equal(t, "01", tracked.Participant)
	assert.Equal(t, "MR1", tracked.Session)
}

func TestHandleJidBadOutput(t *testing.T) {
	jobIDs := make(map[string]*JidStruct)
	_, err := handleJid(context.Background(), synb0.NewSession("01", "MR1"), &jobIDs,
		"Request aborted by esub.", t.TempDir())
	assert.Error(t, err)
	assert.Empty(t, jobIDs)
}

func TestLoadJIDsRoundTrip(t *testing.T) {
	conf := testConfig(t)
	jobIDs := make(map[string]*JidStruct)
	h := &Handler{Config: conf, JIDs: &jobIDs, Ctx: context.Background()}
	require.NoError(t, h.CreateDirectories())

	session := synb0.NewSession("01", "MR1")
	jobDir := filepath.Join(conf.DataRootFolder, session.JobName())
	require.NoError(t, os.MkdirAll(jobDir, 0755))
	_, err := handleJid(context.Background(), session, &jobIDs,
		"Job <314159> is submitted to queue <bsc_normal>.", jobDir)
	require.NoError(t, err)

	// A directory without job files must be skipped, not fail the load.
	require.NoError(t, os.MkdirAll(filepath.Join(conf.DataRootFolder, "stray"), 0755))

	reloaded := make(map[string]*JidStruct)
	h2 := &Handler{Config: conf, JIDs: &reloaded, Ctx: context.Background()}
	require.NoError(t, h2.LoadJIDs())

	require.Len(t, reloaded, 1)
	tracked := reloaded[session.JobName()]
	require.NotNil(t, tracked)
	assert.Equal(t, "314159", tracked.JID)
	assert.Equal(t, "01", tracked.Participant)
	assert.Equal(t, "MR1", tracked.Session)
	assert.False(t, tracked.SubmitTime.IsZero())
}

func TestCheckIfJidExists(t *testing.T) {
	jobIDs := map[string]*JidStruct{"a": {JobName: "a", JID: "1"}}
	assert.True(t, checkIfJidExists(&jobIDs, "a"))
	assert.False(t, checkIfJidExists(&jobIDs, "b"))

	removeJID("a", &jobIDs)
	assert.False(t, checkIfJidExists(&jobIDs, "a"))
}
