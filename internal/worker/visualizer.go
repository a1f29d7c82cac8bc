package worker

import (
	"context"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/errs"
)

// validChartTypes is the fixed set of chart types the Visualizer may
// produce (spec.md §4.3 Result validation).
var validChartTypes = map[string]bool{
	"pie": true, "donut": true, "bar": true, "horizontal_bar": true, "line": true,
}

// VisualizerInput is the Visualizer's request shape.
type VisualizerInput struct {
	Snapshot domain.PortfolioSnapshot `json:"snapshot"`
}

// VisualizerBackendOutput is the raw chart set before count/shape
// validation.
type VisualizerBackendOutput struct {
	Charts []domain.ChartSpec `json:"charts"`
}

// Visualizer adapts a chart-generation backend to the Worker contract,
// validating chart count bounds and per-chart structure the way the
// teacher's charts.Service shapes ChartDataPoint series.
type Visualizer struct {
	backend  Backend[VisualizerInput, VisualizerBackendOutput]
	countMin int
	countMax int
}

// NewVisualizer wires a backend with the configured chart-count bounds.
func NewVisualizer(backend Backend[VisualizerInput, VisualizerBackendOutput], countMin, countMax int) *Visualizer {
	return &Visualizer{backend: backend, countMin: countMin, countMax: countMax}
}

// Invoke generates charts and validates the set's size and each chart's
// structure.
func (v *Visualizer) Invoke(ctx context.Context, in VisualizerInput) (domain.ChartsPayload, error) {
	out, err := v.backend.Call(ctx, in)
	if err != nil {
		return domain.ChartsPayload{}, classifyBackendError(err)
	}

	if len(out.Charts) < v.countMin || len(out.Charts) > v.countMax {
		return domain.ChartsPayload{}, errs.Newf(errs.KindValidation, "visualizer returned %d charts, want between %d and %d", len(out.Charts), v.countMin, v.countMax)
	}

	for _, c := range out.Charts {
		if c.Title == "" {
			return domain.ChartsPayload{}, errs.New(errs.KindValidation, "visualizer chart missing title")
		}
		if !validChartTypes[c.Type] {
			return domain.ChartsPayload{}, errs.Newf(errs.KindValidation, "visualizer chart has invalid type %q", c.Type)
		}
		if len(c.Data) == 0 {
			return domain.ChartsPayload{}, errs.Newf(errs.KindValidation, "visualizer chart %q has no data points", c.Title)
		}
	}

	return domain.ChartsPayload{Charts: out.Charts}, nil
}
