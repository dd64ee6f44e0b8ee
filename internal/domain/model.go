package domain

import (
	"errors"
	"fmt"
)

// ErrModelShape is returned when a linear model's vectors disagree in length.
var ErrModelShape = errors.New("model shape mismatch")

// LinearModel is a frozen, standardized linear scorer.
type LinearModel struct {
	FeatureNames []string  `json:"featureNames" yaml:"featureNames"`
	Coefficients []float64 `json:"coefficients" yaml:"coefficients"`
	Center       []float64 `json:"center" yaml:"center"`
	Scale        []float64 `json:"scale" yaml:"scale"`
	Intercept    float64   `json:"intercept" yaml:"intercept"`
}

// Validate checks that every per-feature vector matches the feature list.
func (m *LinearModel) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: model is nil", ErrModelShape)
	}
	n := len(m.FeatureNames)
	if n == 0 {
		return fmt.Errorf("%w: no features", ErrModelShape)
	}
	if len(m.Coefficients) != n || len(m.Center) != n || len(m.Scale) != n {
		return fmt.Errorf("%w: %d features, %d coefficients, %d centers, %d scales",
			ErrModelShape, n, len(m.Coefficients), len(m.Center), len(m.Scale))
	}
	seen := make(map[string]struct{}, n)
	for _, name := range m.FeatureNames {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate feature %q", ErrModelShape, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// RiskContribution is one feature's signed share of the linear score.
type RiskContribution struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
	RawValue     float64 `json:"rawValue"`
}
