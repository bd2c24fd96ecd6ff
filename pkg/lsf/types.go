package lsf

import (
	"context"
	"time"

	"github.com/picsl-hpc/synb0-lsf/pkg/config"
)

// Handler bundles the configuration and the in-memory job table used by the
// submit/status/cancel/logs operations.
type Handler struct {
	Config config.Synb0Config
	JIDs   *map[string]*JidStruct
	Ctx    context.Context
}

// JidStruct tracks one submitted LSF job. It is persisted as small files in the
// job directory under DataRootFolder so the tracking survives restarts.
type JidStruct struct {
	JobName     string    `json:"JobName"`
	Participant string    `json:"Participant"`
	Session     string    `json:"Session"`
	JID         string    `json:"JID"`
	SubmitTime  time.Time `json:"SubmitTime"`
}

// JobState is the reduced lifecycle reported by the status operation.
type JobState string

const (
	StatePending JobState = "PENDING"
	StateRunning JobState = "RUNNING"
	StateDone    JobState = "DONE"
	StateFailed  JobState = "FAILED"
	StateUnknown JobState = "UNKNOWN"
)

// JobStatus is the status of one tracked job as reported by bjobs, or
// reconstructed from the job.status file once LSF has forgotten the job.
type JobStatus struct {
	JobName     string   `json:"JobName"`
	Participant string   `json:"Participant"`
	Session     string   `json:"Session"`
	JID         string   `json:"JID"`
	State       JobState `json:"State"`
	ExitCode    int32    `json:"ExitCode"`
}
