// Package attribution decomposes a frozen linear model's score into per-feature
// contributions.
package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// DefaultTop is the number of contributions shown when no limit is given.
const DefaultTop = 12

// Attributor computes contributions against one validated model.
type Attributor struct {
	model  *domain.LinearModel
	logger *slog.Logger
}

// New validates the model and returns an Attributor.
func New(model *domain.LinearModel, logger *slog.Logger) (*Attributor, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Attributor{model: model, logger: logger}, nil
}

// Contributions returns every feature's contribution sorted by descending
// absolute value. Ties keep model order.
func (a *Attributor) Contributions(ctx context.Context, recordID string, features domain.FeatureVector) []domain.RiskContribution {
	m := a.model
	out := make([]domain.RiskContribution, len(m.FeatureNames))
	var defaulted []string

	for i, name := range m.FeatureNames {
		raw, ok := features[name]
		if !ok {
			defaulted = append(defaulted, name)
		}
		scale := m.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = domain.RiskContribution{
			Feature:      name,
			Contribution: m.Coefficients[i] * (raw - m.Center[i]) / scale,
			RawValue:     raw,
		}
	}

	if len(defaulted) > 0 {
		a.logger.DebugContext(ctx, "features defaulted to zero",
			"record_id", recordID,
			"count", len(defaulted),
			"features", defaulted,
		)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Contribution) > math.Abs(out[j].Contribution)
	})
	return out
}

// Top returns the n largest contributions re-sorted ascending by signed value.
// n <= 0 means DefaultTop.
func Top(sorted []domain.RiskContribution, n int) []domain.RiskContribution {
	if n <= 0 {
		n = DefaultTop
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	top := make([]domain.RiskContribution, n)
	copy(top, sorted[:n])
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Contribution < top[j].Contribution
	})
	return top
}

// LinearScore is the intercept plus the sum of all contributions.
func (a *Attributor) LinearScore(contribs []domain.RiskContribution) float64 {
	sum := a.model.Intercept
	for _, c := range contribs {
		sum += c.Contribution
	}
	return sum
}

// Probability applies the logistic link to a linear score.
func Probability(linear float64) float64 {
	return 1 / (1 + math.Exp(-linear))
}

// Risk label bands on the model probability.
const (
	LabelHigh     = "High"
	LabelElevated = "Elevated"
	LabelModerate = "Moderate"
	LabelLow      = "Low"
)

// RiskLabel maps a probability to its display band.
func RiskLabel(score float64) string {
	switch {
	case score >= 0.15:
		return LabelHigh
	case score >= 0.08:
		return LabelElevated
	case score >= 0.04:
		return LabelModerate
	default:
		return LabelLow
	}
}

// TopDrivers returns up to three features pushing risk up by more than 0.05,
// in the order given.
func TopDrivers(sorted []domain.RiskContribution) []domain.RiskContribution {
	var out []domain.RiskContribution
	for _, c := range sorted {
		if c.Contribution > 0.05 {
			out = append(out, c)
			if len(out) == 3 {
				break
			}
		}
	}
	return out
}

// FeatureLabel returns a readable name for a feature.
func FeatureLabel(name string) string {
	if l, ok := featureLabels[name]; ok {
		return l
	}
	return name
}

var featureLabels = map[string]string{
	domain.FeaturePriceWeight:     "Price weight",
	domain.FeatureQualityWeight:   "Quality weight",
	domain.FeatureLogValue:        "Contract value",
	domain.FeatureValueMissing:    "Value not published",
	domain.FeatureLogDeadline:     "Submission deadline",
	domain.FeatureDeadlineMissing: "Deadline not published",
	domain.FeatureTendersReceived: "Tenders received",
	domain.FeatureTendersMissing:  "Tender count unknown",
	domain.FeatureEUFunded:        "EU funded",
	domain.FeatureFramework:       "Framework agreement",
	domain.FeatureHasGreen:        "Green criteria",
	domain.FeatureHasSocial:       "Social criteria",
	domain.FeatureHasInnovation:   "Innovation criteria",
}

func init() {
	for _, s := range domain.Sectors {
		featureLabels[domain.SectorFeature(s)] = fmt.Sprintf("Sector: %s", s)
	}
	for _, p := range domain.Procedures {
		featureLabels[domain.ProcedureFeature(p)] = fmt.Sprintf("Procedure: %s", p.Label())
	}
	for _, c := range domain.ContractTypes {
		featureLabels[domain.ContractFeature(c)] = fmt.Sprintf("Contract: %s", c)
	}
}
