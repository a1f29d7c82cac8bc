// Package domain holds the planner's persisted and transient data model:
// Job, Instrument, Account, Position, and the derived PortfolioSnapshot.
package domain

import "time"

// JobKind distinguishes the analysis a job runs.
type JobKind string

const (
	// KindPortfolioAnalysis is the only kind the orchestrator currently
	// dispatches to a registered handler.
	KindPortfolioAnalysis JobKind = "portfolio_analysis"
	// KindRebalance is a reserved extension point. No handler is
	// registered for it; handle() fails such jobs with kind=internal
	// rather than guessing at rebalance semantics.
	KindRebalance JobKind = "rebalance"
)

// JobStatus is the job's lifecycle state. completed and failed are
// terminal and absorbing.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobError is the diagnostic detail attached to a failed job.
type JobError struct {
	Kind  string `json:"kind"`
	Cause string `json:"cause"`
}

// Job is the durable record of one analysis request and its outcome.
type Job struct {
	ID      string
	OwnerID string
	Kind    JobKind
	Status  JobStatus

	Input InputSnapshot

	Narrative   *NarrativePayload
	Charts      *ChartsPayload
	Projections *ProjectionsPayload
	Summary     *SummaryPayload

	Error *JobError

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time

	// Version is bumped on every SetJobStatus/WriteJobPayload call. It is
	// used only by idempotent-replay tests and is never part of the
	// public contract exposed to workers or the HTTP surface.
	Version int64
}

// InputSnapshot is the structured request payload captured at job
// creation time.
type InputSnapshot struct {
	RetirementHorizonYears int     `json:"retirement_horizon_years"`
	IncomeTargetMonthly    float64 `json:"income_target_monthly"`
	UserProfile            string  `json:"user_profile,omitempty"`
}

// Complete reports whether every required payload is populated, which is
// the sole completion predicate for the job (§9: results are replaced,
// not merged).
func (j *Job) Complete() bool {
	return j.Narrative != nil && j.Charts != nil && j.Projections != nil && j.Summary != nil
}

// NarrativePayload is the Narrator's validated output. HeadingsPresent
// holds the required headings found in Text, matched case-insensitively
// by the caller, so the payload records what it found.
type NarrativePayload struct {
	Text             string   `json:"text"`
	HeadingsPresent  []string `json:"headings_present"`
	QualityScore     int      `json:"quality_score"`
	RegenerationUsed bool     `json:"regeneration_used"`
}

// ChartSpec is one visualization produced by the Visualizer.
type ChartSpec struct {
	Title string        `json:"title"`
	Type  string        `json:"type"`
	Data  []ChartPoint  `json:"data"`
}

// ChartPoint is one labeled data point within a chart.
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ChartsPayload is the Visualizer's output: an ordered set of chart specs.
type ChartsPayload struct {
	Charts []ChartSpec `json:"charts"`
}

// Milestone is one point along the Projector's projected timeline.
type Milestone struct {
	Year            int     `json:"year"`
	ProjectedValue  float64 `json:"projected_value"`
}

// ProjectionsPayload is the Projector's output.
type ProjectionsPayload struct {
	SuccessProbability float64     `json:"success_probability"`
	Milestones         []Milestone `json:"milestones"`
	Narrative          string      `json:"narrative"`
}

// SummaryPayload is the Classifier-agnostic top-line summary the
// orchestrator derives for the completed record. It is treated as a
// fourth required payload field per the Store contract (§4.5).
type SummaryPayload struct {
	TotalValue float64 `json:"total_value"`
	AsOf       time.Time `json:"as_of"`
}
