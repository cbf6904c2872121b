// Package types defines the domain model shared by the job server:
// job identifiers, the closed set of job kinds, jobs themselves and the
// two shapes of the on-disk result document.
package types

import "encoding/json"

// JobID is a positive integer allocated by the id counter, starting at 1.
type JobID int64

// JobKind names one of the statistical computations the server accepts.
// The set is closed; each kind maps 1:1 to a POST endpoint.
type JobKind string

const (
	KindStatesMean          JobKind = "states_mean"
	KindStateMean           JobKind = "state_mean"
	KindBest5               JobKind = "best5"
	KindWorst5              JobKind = "worst5"
	KindGlobalMean          JobKind = "global_mean"
	KindDiffFromMean        JobKind = "diff_from_mean"
	KindStateDiffFromMean   JobKind = "state_diff_from_mean"
	KindMeanByCategory      JobKind = "mean_by_category"
	KindStateMeanByCategory JobKind = "state_mean_by_category"
)

// Kinds lists every job kind in endpoint order.
var Kinds = []JobKind{
	KindStatesMean,
	KindStateMean,
	KindBest5,
	KindWorst5,
	KindGlobalMean,
	KindDiffFromMean,
	KindStateDiffFromMean,
	KindMeanByCategory,
	KindStateMeanByCategory,
}

// Valid reports whether k is one of the declared kinds.
func (k JobKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Job is one request for a computation. It is created by ingress,
// consumed exactly once by a worker and never mutated.
type Job struct {
	ID       JobID
	Kind     JobKind
	Question string
	State    string
}

// JobState is the externally visible state of a job.
type JobState string

const (
	StateRunning JobState = "running"
	StateDone    JobState = "done"
)

// ResultDoc is the JSON document stored at results/<id>.json. While the
// job is in flight only Status is set; Finalize rewrites the file with
// Status "done" and the computation output in Data. Data is kept as raw
// JSON so the key order produced by the computation layer survives.
type ResultDoc struct {
	Status JobState        `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// RunningDoc is the serialized in-flight document.
func RunningDoc() []byte {
	return []byte(`{"status":"running"}`)
}

// DoneDoc builds the serialized terminal document around data.
func DoneDoc(data json.RawMessage) ([]byte, error) {
	return json.Marshal(ResultDoc{Status: StateDone, Data: data})
}
