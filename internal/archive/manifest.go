package archive

import (
	"time"

	"github.com/arcfin/planner/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// keyPrefix namespaces every manifest object so List(ctx, keyPrefix) finds
// exactly the objects this package wrote.
const keyPrefix = "planner-job-"

// Manifest is the durable audit record for one terminal job: its request,
// every section payload it accumulated, and its failure detail if any.
// It is encoded with msgpack rather than JSON because it is a write-only
// artifact never read back into a validated request/response boundary.
type Manifest struct {
	JobID       string                    `msgpack:"job_id"`
	OwnerID     string                    `msgpack:"owner_id"`
	Kind        domain.JobKind            `msgpack:"kind"`
	Status      domain.JobStatus          `msgpack:"status"`
	Input       domain.InputSnapshot      `msgpack:"input"`
	Narrative   *domain.NarrativePayload  `msgpack:"narrative,omitempty"`
	Charts      *domain.ChartsPayload     `msgpack:"charts,omitempty"`
	Projections *domain.ProjectionsPayload `msgpack:"projections,omitempty"`
	Summary     *domain.SummaryPayload    `msgpack:"summary,omitempty"`
	Error       *domain.JobError          `msgpack:"error,omitempty"`
	CreatedAt   time.Time                 `msgpack:"created_at"`
	CompletedAt *time.Time                `msgpack:"completed_at,omitempty"`
	ArchivedAt  time.Time                 `msgpack:"archived_at"`
}

// ManifestFromJob builds a Manifest from a job's terminal state.
func ManifestFromJob(job *domain.Job, archivedAt time.Time) Manifest {
	return Manifest{
		JobID:       job.ID,
		OwnerID:     job.OwnerID,
		Kind:        job.Kind,
		Status:      job.Status,
		Input:       job.Input,
		Narrative:   job.Narrative,
		Charts:      job.Charts,
		Projections: job.Projections,
		Summary:     job.Summary,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
		ArchivedAt:  archivedAt,
	}
}

// Encode serializes the manifest to msgpack bytes.
func (m Manifest) Encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

// objectKey derives the storage key for a manifest, named so List with
// keyPrefix and a lexicographic sort recovers upload order (the fixed-width
// UTC "20060102-150405" stamp sorts lexicographically by time).
func objectKey(job *domain.Job, archivedAt time.Time) string {
	return keyPrefix + archivedAt.UTC().Format("20060102-150405") + "-" + job.ID + ".msgpack"
}
