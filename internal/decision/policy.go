// Package decision converts analyzed scores and image quality into a cautious
// outcome for the patient-facing client.
package decision

import (
	"fmt"

	"github.com/example/skinai/internal/labels"
	"github.com/example/skinai/internal/preprocess"
	"github.com/example/skinai/internal/scores"
)

// Status is the outcome category reported to the client.
type Status string

const (
	StatusOK         Status = "ok"
	StatusLowQuality Status = "low_quality"
	StatusUncertain  Status = "uncertain"
	StatusBadImage   Status = "bad_image"
)

// UncertaintyType names why a result was flagged.
const UncertaintyType = "low_confidence_or_close_scores"

// Thresholds drive the policy. Confidence and Gap flag ambiguous results,
// NormalAccept lets a confident "normal" result through.
type Thresholds struct {
	Confidence   float64 `yaml:"conf_threshold" json:"conf_threshold"`
	Gap          float64 `yaml:"gap_threshold" json:"gap_threshold"`
	NormalAccept float64 `yaml:"normal_accept_threshold" json:"normal_accept_threshold"`
}

// DefaultThresholds returns the values the model was calibrated with.
func DefaultThresholds() Thresholds {
	return Thresholds{Confidence: 0.70, Gap: 0.12, NormalAccept: 0.65}
}

// Validate reports thresholds outside [0,1].
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"conf_threshold":          t.Confidence,
		"gap_threshold":           t.Gap,
		"normal_accept_threshold": t.NormalAccept,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	return nil
}

// LabelScore is one entry of the uncertainty explanation.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Uncertainty explains an ambiguous result.
type Uncertainty struct {
	Type          string       `json:"type"`
	ConfThreshold float64      `json:"conf_threshold"`
	GapThreshold  float64      `json:"gap_threshold"`
	Top2          []LabelScore `json:"top2"`
}

// Outcome is the decision for one request.
type Outcome struct {
	Status      Status
	Label       string
	Index       int
	Confidence  float64
	Gap         float64
	Top3        []scores.Entry
	Uncertainty *Uncertainty
}

// Policy decides outcomes. The zero value is not useful; use NewPolicy.
type Policy struct {
	Thresholds  Thresholds
	NormalLabel string
}

// NewPolicy builds a policy; an empty normalLabel selects labels.NormalLabel.
func NewPolicy(t Thresholds, normalLabel string) Policy {
	if normalLabel == "" {
		normalLabel = labels.NormalLabel
	}
	return Policy{Thresholds: t, NormalLabel: normalLabel}
}

// Decide never fails: every (analysis, tier) pair maps to exactly one status.
// A low tier downgrades what would be ok or uncertain to low_quality.
func (p Policy) Decide(a scores.Analysis, tier preprocess.Tier) Outcome {
	out := Outcome{
		Label:      a.BestLabel,
		Index:      a.BestIndex,
		Confidence: a.Confidence,
		Gap:        a.Gap,
		Top3:       a.Top,
	}
	if len(out.Top3) > 3 {
		out.Top3 = out.Top3[:3]
	}

	switch {
	case tier == preprocess.TierBad:
		out.Status = StatusBadImage
	case a.BestLabel == p.NormalLabel && a.Confidence >= p.Thresholds.NormalAccept:
		out.Status = graded(StatusOK, tier)
	case a.Confidence < p.Thresholds.Confidence || a.Gap < p.Thresholds.Gap:
		out.Status = graded(StatusUncertain, tier)
		out.Uncertainty = p.explain(a)
	default:
		out.Status = graded(StatusOK, tier)
	}
	return out
}

func (p Policy) explain(a scores.Analysis) *Uncertainty {
	u := &Uncertainty{
		Type:          UncertaintyType,
		ConfThreshold: p.Thresholds.Confidence,
		GapThreshold:  p.Thresholds.Gap,
		Top2:          make([]LabelScore, 0, 2),
	}
	for i := 0; i < len(a.Top) && i < 2; i++ {
		u.Top2 = append(u.Top2, LabelScore{Label: a.Top[i].Label, Score: a.Top[i].Score})
	}
	return u
}

func graded(s Status, tier preprocess.Tier) Status {
	if tier == preprocess.TierGood {
		return s
	}
	return StatusLowQuality
}
