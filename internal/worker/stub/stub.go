// Package stub provides a deterministic in-process Backend for every
// worker kind, used as the default wiring in the reference binary and by
// orchestrator tests in place of a real specialist service.
package stub

import (
	"context"
	"fmt"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/worker"
)

// Classifier returns a fixed 100% "other" classification for every item,
// which is always a structurally valid (summing-to-100) allocation map.
type Classifier struct{}

func (Classifier) Call(ctx context.Context, in worker.ClassifierInput) (worker.ClassifierOutput, error) {
	out := worker.ClassifierOutput{Results: make([]worker.ClassifierResult, 0, len(in.Items))}
	for _, item := range in.Items {
		out.Results = append(out.Results, worker.ClassifierResult{
			Symbol:        item.Symbol,
			AssetClassMap: map[string]float64{"other": 100},
			RegionMap:     map[string]float64{"other": 100},
			SectorMap:     map[string]float64{"other": 100},
		})
	}
	return out, nil
}

// Narrator builds a templated narrative containing every section heading
// it's told to satisfy, so the stub passes validation without a real LLM.
type Narrator struct {
	RequiredHeadings []string
}

func (n Narrator) Call(ctx context.Context, in worker.NarratorInput) (worker.NarratorBackendOutput, error) {
	text := fmt.Sprintf("Portfolio summary for %s, total value $%.2f.\n\n", in.UserProfile, in.Snapshot.TotalValue)
	for _, h := range n.RequiredHeadings {
		text += fmt.Sprintf("%s\n%s details go here.\n\n", h, h)
	}
	return worker.NarratorBackendOutput{Text: text}, nil
}

// Judge returns its configured Score, or 80 when Score is zero;
// deterministic for replay tests.
type Judge struct {
	Score int
}

func (j Judge) Call(ctx context.Context, in worker.JudgeInput) (worker.JudgeOutput, error) {
	score := j.Score
	if score == 0 {
		score = 80
	}
	return worker.JudgeOutput{Score: score, Rationale: "stub judge: deterministic pass"}, nil
}

// Visualizer returns a fixed set of charts built from the snapshot's
// allocation maps, one chart per dimension.
type Visualizer struct{}

func (Visualizer) Call(ctx context.Context, in worker.VisualizerInput) (worker.VisualizerBackendOutput, error) {
	charts := []domain.ChartSpec{
		chartFromMap("Asset Allocation", "pie", in.Snapshot.AssetClass),
		chartFromMap("Region Allocation", "donut", in.Snapshot.Region),
		chartFromMap("Sector Allocation", "bar", in.Snapshot.Sector),
		{Title: "Total Value", Type: "line", Data: []domain.ChartPoint{{Label: "current", Value: in.Snapshot.TotalValue}}},
	}
	return worker.VisualizerBackendOutput{Charts: charts}, nil
}

func chartFromMap(title, chartType string, m map[string]float64) domain.ChartSpec {
	points := make([]domain.ChartPoint, 0, len(m))
	for label, value := range m {
		points = append(points, domain.ChartPoint{Label: label, Value: value})
	}
	if len(points) == 0 {
		points = []domain.ChartPoint{{Label: "unclassified", Value: 100}}
	}
	return domain.ChartSpec{Title: title, Type: chartType, Data: points}
}

// Projector returns a success probability of 50 plus the expected annual
// return in percent (clamped to [0,100]) and a yearly milestone walk that
// compounds the snapshot value at that return, so stub output still
// varies with real portfolio inputs.
type Projector struct{}

func (Projector) Call(ctx context.Context, in worker.ProjectorInput) (worker.ProjectorBackendOutput, error) {
	milestones := make([]domain.Milestone, 0, in.RetirementHorizonYears)
	value := in.Snapshot.TotalValue
	for year := 1; year <= in.RetirementHorizonYears; year++ {
		value *= 1 + in.Estimate.ExpectedAnnualReturn
		milestones = append(milestones, domain.Milestone{Year: year, ProjectedValue: value})
	}

	probability := 50 + in.Estimate.ExpectedAnnualReturn*100
	if probability < 0 {
		probability = 0
	}
	if probability > 100 {
		probability = 100
	}

	return worker.ProjectorBackendOutput{
		SuccessProbability: probability,
		Milestones:         milestones,
		Narrative:          fmt.Sprintf("Projected over %d years at an expected annual return of %.2f%%.", in.RetirementHorizonYears, in.Estimate.ExpectedAnnualReturn*100),
	}, nil
}
