// Package progress defines the event stream emitted by ingestion workers.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart   Stage = "JOB_START"
	StageJobDone    Stage = "JOB_DONE"
	StageJobError   Stage = "JOB_ERROR"
	StagePageStored Stage = "PAGE_STORED"
	StagePageFailed Stage = "PAGE_FAILED"
)

// Event captures a single component of ingestion progress.
type Event struct {
	// JobID identifies the ingestion job run.
	JobID string
	// Tenant scopes the event to a knowledge-base partition.
	Tenant string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or page milestone occurred.
	Stage Stage
	// URL is the page URL for page-level events.
	URL string
	// Chunks carries the number of chunks stored for the page.
	Chunks int64
	// Dur captures execution latency for pages and job completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StagePageStored, StagePageFailed:
		if e.URL == "" {
			return errors.New("page event requires url")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
