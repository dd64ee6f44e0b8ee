package assess

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/procuresight/internal/attribution"
	"github.com/opensource-finance/procuresight/internal/domain"
)

// Summary writes the plain-language explanation of why a record is flagged.
// Paragraphs are separated by a blank line; nothing to say yields "".
func Summary(score float64, disputed bool, drivers []domain.RiskContribution, narrative *domain.NarrativeResult) string {
	var parts []string

	pct := fmt.Sprintf("%.1f%%", score*100)
	if score >= 0.08 {
		parts = append(parts, fmt.Sprintf(
			"This procurement has a %s risk score, placing it in the %s risk category.",
			pct, strings.ToLower(attribution.RiskLabel(score))))
	} else {
		parts = append(parts, fmt.Sprintf("This procurement has a %s risk score (low risk).", pct))
	}

	if disputed {
		parts = append(parts, "It has active review dispute(s) on record.")
	}

	if len(drivers) > 0 {
		reasons := make([]string, 0, len(drivers))
		for _, d := range drivers {
			reasons = append(reasons, strings.ToLower(attribution.FeatureLabel(d.Feature)))
		}
		parts = append(parts, "The main risk drivers are: "+strings.Join(reasons, ", ")+".")
	}

	if narrative != nil {
		var issues []string
		for _, is := range narrative.Issues {
			if is.Likely() {
				issues = append(issues, is.Label)
			}
			if len(issues) == 3 {
				break
			}
		}
		if len(issues) > 0 {
			parts = append(parts, "Document analysis identified: "+strings.Join(issues, "; ")+".")
		}
		if narrative.Scenario != "" {
			parts = append(parts, "Likely scenario: "+narrative.Scenario)
		}
	}

	return strings.Join(parts, "\n\n")
}
