package worker

import (
	"context"
	"strings"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/errs"
	"github.com/arcfin/planner/internal/projection"
)

// ProjectorInput is the Projector's request shape. TechnicalSignal carries
// the per-instrument SMA/RSI/portfolio estimate computed server-side
// (internal/projection) so the worker has a numeric trend signal to ground
// its milestone narrative in, rather than inventing one.
type ProjectorInput struct {
	Snapshot               domain.PortfolioSnapshot  `json:"snapshot"`
	RetirementHorizonYears int                       `json:"retirement_horizon_years"`
	IncomeTargetMonthly    float64                   `json:"income_target_monthly"`
	Estimate               projection.Estimate       `json:"estimate"`
	TechnicalSignals       []projection.TechnicalSnapshot `json:"technical_signals"`
}

// ProjectorBackendOutput is the raw projection document before validation.
type ProjectorBackendOutput struct {
	SuccessProbability float64            `json:"success_probability"`
	Milestones         []domain.Milestone `json:"milestones"`
	Narrative          string             `json:"narrative"`
}

// Projector adapts a retirement-projection backend to the Worker contract.
type Projector struct {
	backend Backend[ProjectorInput, ProjectorBackendOutput]
}

// NewProjector wraps a backend as a Projector worker.
func NewProjector(backend Backend[ProjectorInput, ProjectorBackendOutput]) *Projector {
	return &Projector{backend: backend}
}

// Invoke generates the projection document and validates its structure:
// a success probability in [0,100], at least one milestone, and a
// non-empty narrative section.
func (p *Projector) Invoke(ctx context.Context, in ProjectorInput) (domain.ProjectionsPayload, error) {
	out, err := p.backend.Call(ctx, in)
	if err != nil {
		return domain.ProjectionsPayload{}, classifyBackendError(err)
	}

	if out.SuccessProbability < 0 || out.SuccessProbability > 100 {
		return domain.ProjectionsPayload{}, errs.Newf(errs.KindValidation, "projector success_probability %f out of [0,100]", out.SuccessProbability)
	}
	if len(out.Milestones) == 0 {
		return domain.ProjectionsPayload{}, errs.New(errs.KindValidation, "projector returned no milestones")
	}
	if strings.TrimSpace(out.Narrative) == "" {
		return domain.ProjectionsPayload{}, errs.New(errs.KindValidation, "projector returned empty narrative")
	}

	return domain.ProjectionsPayload{
		SuccessProbability: out.SuccessProbability,
		Milestones:         out.Milestones,
		Narrative:          out.Narrative,
	}, nil
}
