package recommend

import "strings"

// ForIssue returns fix advice for a narrative issue label.
func ForIssue(issue string) string {
	s := strings.ToLower(issue)
	switch {
	case strings.Contains(s, "disproportionate") && strings.Contains(s, "turnover"):
		return "Review the turnover requirement against the actual contract value. " +
			"RHS § 38 requires qualification criteria to be proportionate. " +
			"Consider reducing the threshold to 1-2x annual contract value, or " +
			"allowing consortia to meet the requirement collectively."
	case strings.Contains(s, "disproportionate") && containsAny(s, "qualification", "experience"):
		return "Ensure qualification requirements are proportionate to the contract scope. " +
			"Consider whether similar experience requirements are too narrow " +
			"(specific technology, specific client type) and could be broadened " +
			"while still ensuring competence."
	case strings.Contains(s, "restrictive") && containsAny(s, "specification", "technical"):
		return "Review technical specifications for brand-specific or overly narrow requirements. " +
			"Use functional specifications where possible (describe what it should do, not what it should be). " +
			"If a specific standard is referenced, add 'or equivalent'."
	case strings.Contains(s, "unclear") && strings.Contains(s, "criteria"):
		return "Clarify evaluation methodology: specify exactly how quality criteria will be scored, " +
			"what constitutes a high vs low score, and provide the scoring matrix in the tender documents. " +
			"Ambiguous criteria are the most common basis for VAKO challenges."
	case containsAny(s, "brand", "vendor", "lock"):
		return "Remove brand-specific references or add 'or equivalent' language. " +
			"Specify requirements in terms of functional performance, not manufacturer. " +
			"If a specific brand is genuinely the only option, document the justification."
	case strings.Contains(s, "price") && strings.Contains(s, "only"):
		return "Consider adding quality criteria to the evaluation. For complex services, " +
			"price-only evaluation risks selecting providers who undercut on quality. " +
			"Even a simple 70/30 price/quality split can improve outcomes."
	}
	return "Review this aspect of the procurement documents for compliance with the " +
		"Public Procurement Act (RHS). Consider whether the requirement could be " +
		"reworded to be more proportionate, transparent, or competition-friendly."
}
