package worker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/errs"
)

// ClassifierItem is one instrument submitted for classification.
type ClassifierItem struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	KindHint string `json:"kind_hint,omitempty"`
}

// ClassifierInput is the Classifier's request shape: the instruments
// currently missing an allocation map.
type ClassifierInput struct {
	Items []ClassifierItem `json:"items"`
}

// ClassifierResult is one instrument's resolved allocation maps.
type ClassifierResult struct {
	Symbol        string             `json:"symbol"`
	AssetClassMap map[string]float64 `json:"asset_class_map"`
	RegionMap     map[string]float64 `json:"region_map"`
	SectorMap     map[string]float64 `json:"sector_map"`
}

// ClassifierOutput is the Classifier's response shape. Re-invocation is
// idempotent: each call fully replaces the prior allocation maps for the
// symbols it covers.
type ClassifierOutput struct {
	Results []ClassifierResult `json:"results"`
}

// Classifier adapts a Backend to the Worker contract, validating that
// every returned allocation map is either empty or sums to 100±0.01
// (domain.ValidAllocationMap).
type Classifier struct {
	backend Backend[ClassifierInput, ClassifierOutput]
	log     zerolog.Logger
}

// NewClassifier wraps a backend as a Classifier worker.
func NewClassifier(backend Backend[ClassifierInput, ClassifierOutput], log zerolog.Logger) *Classifier {
	return &Classifier{backend: backend, log: log.With().Str("component", "classifier").Logger()}
}

// Invoke calls the backend and keeps only the results whose allocation
// maps validate. A malformed result for one instrument is skipped with a
// logged warning rather than discarding the whole batch (spec §4.2 Step
// B: "Persist accepted classifications; skip invalid ones with a logged
// warning").
func (c *Classifier) Invoke(ctx context.Context, in ClassifierInput) (ClassifierOutput, error) {
	out, err := c.backend.Call(ctx, in)
	if err != nil {
		return ClassifierOutput{}, classifyBackendError(err)
	}

	accepted := make([]ClassifierResult, 0, len(out.Results))
	for _, r := range out.Results {
		if !domain.ValidAllocationMap(r.AssetClassMap) || !domain.ValidAllocationMap(r.RegionMap) || !domain.ValidAllocationMap(r.SectorMap) {
			c.log.Warn().Str("symbol", r.Symbol).Msg("classifier returned an invalid allocation map, skipping")
			continue
		}
		accepted = append(accepted, r)
	}

	return ClassifierOutput{Results: accepted}, nil
}

// classifyBackendError wraps a plain backend error as transient unless it
// already carries a Kind (e.g. from the httpjson transport's context
// handling).
func classifyBackendError(err error) error {
	if errs.KindOf(err) != errs.KindInternal {
		return err
	}
	return errs.Wrap(errs.KindTransient, "classifier backend call failed", err)
}
