package archive

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/metrics"
)

// minManifestsToKeep mirrors the teacher's R2BackupService.RotateOldBackups
// floor: rotation never removes every manifest, regardless of age.
const minManifestsToKeep = 3

// Archiver uploads a terminal job's manifest and prunes old ones. Every
// method is best-effort: a failure is logged and counted, never returned
// to a caller that would use it to fail a job.
type Archiver struct {
	store Uploader
	log   zerolog.Logger
	mx    *metrics.Registry
}

// New builds an Archiver. mx may be nil in tests that don't assert on
// counters.
func New(store Uploader, mx *metrics.Registry, log zerolog.Logger) *Archiver {
	return &Archiver{store: store, mx: mx, log: log.With().Str("component", "archiver").Logger()}
}

// ArchiveJob uploads job's manifest. Call this once a job has reached a
// terminal status; the upload never influences that status.
func (a *Archiver) ArchiveJob(ctx context.Context, job *domain.Job) {
	now := time.Now()
	manifest := ManifestFromJob(job, now)

	body, err := manifest.Encode()
	if err != nil {
		a.recordFailure(job.ID, err)
		return
	}

	key := objectKey(job, now)
	if err := a.store.Upload(ctx, key, bytes.NewReader(body), int64(len(body))); err != nil {
		a.recordFailure(job.ID, err)
		return
	}

	a.log.Info().Str("job_id", job.ID).Str("key", key).Msg("archived job manifest")
}

func (a *Archiver) recordFailure(jobID string, err error) {
	a.log.Warn().Err(err).Str("job_id", jobID).Msg("job archival failed, continuing without it")
	if a.mx != nil {
		a.mx.IncArchiveFailed()
	}
}

// RotateOld deletes manifests older than retentionDays, keeping at least
// minManifestsToKeep regardless of age (0 retentionDays means keep
// forever), mirroring the teacher's RotateOldBackups.
func (a *Archiver) RotateOld(ctx context.Context, retentionDays int) error {
	objects, err := a.store.List(ctx, keyPrefix)
	if err != nil {
		return err
	}
	if len(objects) <= minManifestsToKeep || retentionDays == 0 {
		return nil
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, obj := range objects {
		if i < minManifestsToKeep {
			continue
		}
		if obj.LastModified.Before(cutoff) {
			if err := a.store.Delete(ctx, obj.Key); err != nil {
				a.log.Warn().Err(err).Str("key", obj.Key).Msg("failed to delete old archive")
				continue
			}
			deleted++
		}
	}

	a.log.Info().Int("deleted", deleted).Int("remaining", len(objects)-deleted).Msg("archive rotation completed")
	return nil
}

// RotationJob adapts RotateOld to the scheduler.Job interface (Run/Name),
// satisfied structurally so internal/scheduler never needs to import
// internal/archive.
type RotationJob struct {
	Archiver      *Archiver
	RetentionDays int
	Timeout       time.Duration
}

func (j RotationJob) Run() error {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return j.Archiver.RotateOld(ctx, j.RetentionDays)
}

func (j RotationJob) Name() string { return "archive-rotation" }
