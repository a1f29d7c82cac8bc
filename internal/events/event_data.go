// Package events is the planner's in-process observability bus: a
// typed pub/sub carrying the lifecycle events named in SPEC_FULL.md §6.
package events

import (
	"encoding/json"
)

// EventType discriminates the typed EventData payloads below.
type EventType string

const (
	JobStarted              EventType = "job.started"
	JobPreprocessPricesDone EventType = "job.preprocess.prices_done"
	JobPreprocessClassifierDone EventType = "job.preprocess.classifier_done"
	WorkerAttempt           EventType = "worker.attempt"
	WorkerResult            EventType = "worker.result"
	JobTerminal             EventType = "job.terminal"
)

// WorkerOutcome is the classified result of one worker attempt, carried on
// worker.result events.
type WorkerOutcome string

const (
	OutcomeOK         WorkerOutcome = "ok"
	OutcomeTransient  WorkerOutcome = "transient"
	OutcomeValidation WorkerOutcome = "validation"
	OutcomePermanent  WorkerOutcome = "permanent"
	OutcomeCancelled  WorkerOutcome = "cancelled"
)

// EventData is implemented by every typed event payload; EventType
// identifies which constant the payload is published under so Bus.Emit
// doesn't need a separate type parameter at every call site.
type EventData interface {
	EventType() EventType
}

// JobStartedData carries job.started.
type JobStartedData struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
}

func (d *JobStartedData) EventType() EventType { return JobStarted }

// PreprocessDoneData carries both job.preprocess.prices_done and
// job.preprocess.classifier_done; Stage distinguishes which.
type PreprocessDoneData struct {
	Stage      string `json:"stage"` // "prices" or "classifier"
	JobID      string `json:"job_id"`
	Count      int    `json:"count"`
	DurationMS int64  `json:"duration_ms"`
}

func (d *PreprocessDoneData) EventType() EventType {
	if d.Stage == "classifier" {
		return JobPreprocessClassifierDone
	}
	return JobPreprocessPricesDone
}

// WorkerAttemptData carries worker.attempt.
type WorkerAttemptData struct {
	JobID     string `json:"job_id"`
	Worker    string `json:"worker"`
	AttemptNo int    `json:"attempt_no"`
}

func (d *WorkerAttemptData) EventType() EventType { return WorkerAttempt }

// WorkerResultData carries worker.result. Rationale is populated only for
// the Quality Judge path and is observability-only per the Open Question
// decision — it is never persisted to the Job record.
type WorkerResultData struct {
	JobID      string        `json:"job_id"`
	Worker     string        `json:"worker"`
	Outcome    WorkerOutcome `json:"outcome"`
	DurationMS int64         `json:"duration_ms"`
	Rationale  string        `json:"rationale,omitempty"`
}

func (d *WorkerResultData) EventType() EventType { return WorkerResult }

// JobTerminalData carries job.terminal.
type JobTerminalData struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (d *JobTerminalData) EventType() EventType { return JobTerminal }

// Event pairs a typed payload with wire metadata.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // unix millis
	Data      EventData `json:"data"`
}

// MarshalJSON flattens Data alongside the envelope fields.
func (e *Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON reconstructs the correct concrete EventData type from the
// envelope's Type discriminator.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) == 0 {
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case JobStarted:
		eventData = &JobStartedData{}
	case JobPreprocessPricesDone, JobPreprocessClassifierDone:
		eventData = &PreprocessDoneData{}
	case WorkerAttempt:
		eventData = &WorkerAttemptData{}
	case WorkerResult:
		eventData = &WorkerResultData{}
	case JobTerminal:
		eventData = &JobTerminalData{}
	default:
		return nil
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData

	return nil
}
