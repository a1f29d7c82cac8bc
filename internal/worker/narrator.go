package worker

import (
	"context"
	"strings"

	"github.com/arcfin/planner/internal/domain"
	"github.com/arcfin/planner/internal/errs"
)

// NarratorInput is the Narrator's request shape. Attempt is set by the
// dispatcher (1 on the first call) so the adapter knows whether a
// below-threshold Quality Judge score should be rejected as validation
// (triggering the dispatcher's bounded validation retry) or accepted as
// the one allowed regeneration.
type NarratorInput struct {
	Snapshot    domain.PortfolioSnapshot `json:"snapshot"`
	UserProfile string                   `json:"user_profile"`
	Attempt     int                      `json:"attempt"`
}

// NarratorBackendOutput is the raw text the backend produces, before
// heading/quality validation.
type NarratorBackendOutput struct {
	Text string `json:"text"`
}

// JudgeInput is the Quality Judge's request shape.
type JudgeInput struct {
	Text string `json:"text"`
}

// JudgeOutput is the Quality Judge's response shape.
type JudgeOutput struct {
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
}

// Narrator adapts a text-generation backend plus a Quality Judge backend
// to the Worker contract. Required section headings and the judge
// threshold are configuration, not hard-coded (spec.md §9 Open Questions).
type Narrator struct {
	backend          Backend[NarratorInput, NarratorBackendOutput]
	judge            Backend[JudgeInput, JudgeOutput]
	requiredHeadings []string
	judgeThreshold   int
}

// NewNarrator wires a text backend and judge backend with the configured
// required headings and quality threshold.
func NewNarrator(backend Backend[NarratorInput, NarratorBackendOutput], judge Backend[JudgeInput, JudgeOutput], requiredHeadings []string, judgeThreshold int) *Narrator {
	return &Narrator{backend: backend, judge: judge, requiredHeadings: requiredHeadings, judgeThreshold: judgeThreshold}
}

// Invoke generates narrative text, validates required section headings,
// and scores it via the Quality Judge. A score below threshold on the
// first attempt is reported as a validation error so the dispatcher's
// bounded validation-retry triggers regeneration; on the retried attempt
// the result is accepted regardless of score (spec.md §4.3 "validation —
// retried once").
func (n *Narrator) Invoke(ctx context.Context, in NarratorInput) (domain.NarrativePayload, error) {
	out, err := n.backend.Call(ctx, in)
	if err != nil {
		return domain.NarrativePayload{}, classifyBackendError(err)
	}

	if strings.TrimSpace(out.Text) == "" {
		return domain.NarrativePayload{}, errs.New(errs.KindValidation, "narrator returned empty text")
	}

	present := presentHeadings(out.Text, n.requiredHeadings)
	if len(present) < len(n.requiredHeadings) {
		return domain.NarrativePayload{}, errs.Newf(errs.KindValidation, "narrator output missing required headings: have %v, need %v", present, n.requiredHeadings)
	}

	judged, err := n.judge.Call(ctx, JudgeInput{Text: out.Text})
	if err != nil {
		return domain.NarrativePayload{}, classifyBackendError(err)
	}

	if judged.Score < n.judgeThreshold && in.Attempt <= 1 {
		return domain.NarrativePayload{}, errs.Newf(errs.KindValidation, "narrator quality score %d below threshold %d", judged.Score, n.judgeThreshold)
	}

	return domain.NarrativePayload{
		Text:             out.Text,
		HeadingsPresent:  present,
		QualityScore:     judged.Score,
		RegenerationUsed: in.Attempt > 1,
	}, nil
}

// presentHeadings returns the subset of required headings found in text,
// matched case-insensitively.
func presentHeadings(text string, required []string) []string {
	lower := strings.ToLower(text)
	var present []string
	for _, h := range required {
		if strings.Contains(lower, strings.ToLower(h)) {
			present = append(present, h)
		}
	}
	return present
}
