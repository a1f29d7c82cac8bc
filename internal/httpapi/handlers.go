package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/errs"
)

// healthResponse is the /healthz payload.
type healthResponse struct {
	Status        string  `json:"status"`
	Service       string  `json:"service"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
}

// handleHealthz reports process liveness plus host CPU/RAM usage, the
// same pair of signals the teacher's /api/system/status polls for its
// dashboard tile.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := s.systemStats()

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Service:       "planner",
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		CPUPercent:    cpuPct,
		MemPercent:    memPct,
	})
}

func (s *Server) systemStats() (float64, float64) {
	cpuPercents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read cpu stats")
		cpuPercents = []float64{0}
	}
	cpuPct := 0.0
	if len(cpuPercents) > 0 {
		cpuPct = cpuPercents[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read memory stats")
		return cpuPct, 0
	}
	return cpuPct, memStat.UsedPercent
}

// jobResponse is the wire shape returned for GET /jobs/{id}. It mirrors
// domain.Job's fields under explicit json tags rather than serializing
// the Job struct directly, so the internal Version field never leaks
// onto the wire.
type jobResponse struct {
	ID          string                      `json:"id"`
	OwnerID     string                      `json:"owner_id"`
	Kind        string                      `json:"kind"`
	Status      string                      `json:"status"`
	Narrative   *domain.NarrativePayload    `json:"narrative,omitempty"`
	Charts      *domain.ChartsPayload       `json:"charts,omitempty"`
	Projections *domain.ProjectionsPayload  `json:"projections,omitempty"`
	Summary     *domain.SummaryPayload      `json:"summary,omitempty"`
	Error       *domain.JobError            `json:"error,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	StartedAt   *time.Time                  `json:"started_at,omitempty"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`
}

// handleGetJob serves GET /jobs/{id}: the job's current status and
// whatever payloads/error detail have been written so far. A job mid-run
// returns 200 with partial payloads, matching the Store contract's
// read-your-writes guarantee (spec §4.5).
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		s.log.Error().Err(err).Str("job_id", id).Msg("failed to load job")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	s.writeJSON(w, http.StatusOK, jobResponse{
		ID:          job.ID,
		OwnerID:     job.OwnerID,
		Kind:        string(job.Kind),
		Status:      string(job.Status),
		Narrative:   job.Narrative,
		Charts:      job.Charts,
		Projections: job.Projections,
		Summary:     job.Summary,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode json response")
	}
}
