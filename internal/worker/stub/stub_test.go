package stub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/projection"
	"github.com/arcfin/planner/internal/worker"
)

func projectionEstimate(expectedAnnualReturn float64) projection.Estimate {
	return projection.Estimate{ExpectedAnnualReturn: expectedAnnualReturn}
}

func TestClassifier_ReturnsValidAllocationMapsForEveryItem(t *testing.T) {
	out, err := Classifier{}.Call(context.Background(), worker.ClassifierInput{
		Items: []worker.ClassifierItem{{Symbol: "VTI"}, {Symbol: "BND"}},
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	for _, r := range out.Results {
		assert.True(t, domain.ValidAllocationMap(r.AssetClassMap))
		assert.True(t, domain.ValidAllocationMap(r.RegionMap))
		assert.True(t, domain.ValidAllocationMap(r.SectorMap))
	}
}

func TestNarrator_TextContainsEveryRequiredHeading(t *testing.T) {
	n := Narrator{RequiredHeadings: []string{"Executive Summary", "Risks"}}
	out, err := n.Call(context.Background(), worker.NarratorInput{
		UserProfile: "retiree",
		Snapshot:    domain.PortfolioSnapshot{TotalValue: 100000},
	})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Executive Summary")
	assert.Contains(t, out.Text, "Risks")
}

func TestJudge_DefaultsScoreWhenZero(t *testing.T) {
	out, err := Judge{}.Call(context.Background(), worker.JudgeInput{Text: "anything"})
	require.NoError(t, err)
	assert.Equal(t, 80, out.Score)
}

func TestJudge_UsesConfiguredScore(t *testing.T) {
	out, err := Judge{Score: 42}.Call(context.Background(), worker.JudgeInput{Text: "anything"})
	require.NoError(t, err)
	assert.Equal(t, 42, out.Score)
}

func TestVisualizer_BuildsFourChartsFromSnapshot(t *testing.T) {
	out, err := Visualizer{}.Call(context.Background(), worker.VisualizerInput{
		Snapshot: domain.PortfolioSnapshot{
			TotalValue: 50000,
			AssetClass: map[string]float64{"equity": 100},
			Region:     map[string]float64{"us": 100},
			Sector:     map[string]float64{"tech": 100},
		},
	})
	require.NoError(t, err)
	assert.Len(t, out.Charts, 4)
}

func TestVisualizer_EmptyMapFallsBackToUnclassifiedPoint(t *testing.T) {
	out, err := Visualizer{}.Call(context.Background(), worker.VisualizerInput{
		Snapshot: domain.PortfolioSnapshot{TotalValue: 1000},
	})
	require.NoError(t, err)
	assetChart := out.Charts[0]
	require.Len(t, assetChart.Data, 1)
	assert.Equal(t, "unclassified", assetChart.Data[0].Label)
}

func TestProjector_BuildsOneMilestonePerYear(t *testing.T) {
	out, err := Projector{}.Call(context.Background(), worker.ProjectorInput{
		Snapshot:               domain.PortfolioSnapshot{TotalValue: 10000},
		RetirementHorizonYears: 5,
		Estimate:               projectionEstimate(0.05),
	})
	require.NoError(t, err)
	assert.Len(t, out.Milestones, 5)
	assert.Equal(t, 1, out.Milestones[0].Year)
	assert.Greater(t, out.Milestones[4].ProjectedValue, 10000.0)
}

func TestProjector_ClampsProbabilityToRange(t *testing.T) {
	out, err := Projector{}.Call(context.Background(), worker.ProjectorInput{
		Snapshot:               domain.PortfolioSnapshot{TotalValue: 10000},
		RetirementHorizonYears: 1,
		Estimate:               projectionEstimate(-5),
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.SuccessProbability, 0.0)
	assert.LessOrEqual(t, out.SuccessProbability, 100.0)
}
