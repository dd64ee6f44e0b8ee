// Package recommend turns an assessed procurement into a prioritized,
// deduplicated action list.
package recommend

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// Action texts. Each is the identity of the item it produces.
const (
	ActionLegalReview        = "Conduct pre-publication legal review of tender documents"
	ActionJustifyNegotiated  = "Document justification for negotiated procedure"
	ActionVerifyExemption    = "Verify exemption grounds for non-competitive procedure"
	ActionAddQuality         = "Consider adding quality criteria to evaluation"
	ActionScoringMethodology = "Ensure quality criteria have detailed scoring methodology"
	ActionQualification      = "Review qualification requirements for proportionality"
	ActionFunctionalSpecs    = "Replace brand-specific requirements with functional specifications"
	ActionClarifyCriteria    = "Clarify subjective evaluation criteria"
	ActionMarketEngagement   = "Consider market engagement before publication"
	ActionDisputeLessons     = "Review lessons from previous disputes"
	ActionVendorLockIn       = "Check for unintentional vendor lock-in in technical specifications"
)

// Input carries what the synthesizer reads. Narrative and Buyer are optional.
type Input struct {
	Record    *domain.Procurement
	Features  domain.FeatureVector
	Narrative *domain.NarrativeResult
	Buyer     *domain.BuyerProfile
}

// Synthesize evaluates every rule in order and drops repeated action texts,
// keeping the first occurrence.
func Synthesize(in Input) []domain.ActionItem {
	var actions []domain.ActionItem
	for _, r := range rules {
		actions = append(actions, r(in)...)
	}
	return Dedup(actions)
}

// Dedup removes items whose action text was already seen, preserving order.
func Dedup(items []domain.ActionItem) []domain.ActionItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]domain.ActionItem, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.Action]; dup {
			continue
		}
		seen[item.Action] = struct{}{}
		out = append(out, item)
	}
	return out
}

type rule func(in Input) []domain.ActionItem

var rules = []rule{
	valueReview,
	procedureJustification,
	nonCompetitiveExemption,
	criteriaDesign,
	narrativeQualification,
	narrativeBrand,
	narrativeSubjective,
	buyerMarketEngagement,
	buyerDisputeLessons,
	itVendorLockIn,
}

func item(p domain.Priority, action, rationale string) []domain.ActionItem {
	return []domain.ActionItem{{Priority: p, Action: action, Rationale: rationale}}
}

func valueReview(in Input) []domain.ActionItem {
	if !in.Record.ValueAbove(5_000_000) {
		return nil
	}
	return item(domain.PriorityHigh, ActionLegalReview, fmt.Sprintf(
		"Contracts above €5M have a 22%% dispute rate. At %s, this procurement is in the "+
			"highest-risk value bracket. A legal review before publication can catch issues "+
			"that would otherwise lead to VAKO challenges.", domain.FormatEUR(in.Record.EstimatedValue)))
}

func procedureJustification(in Input) []domain.ActionItem {
	if in.Record.Procedure != domain.ProcedureNegotiatedWithCall {
		return nil
	}
	return item(domain.PriorityHigh, ActionJustifyNegotiated,
		"Negotiated procedures have an 18.2% dispute rate (vs 1.9% for open). "+
			"Ensure the choice of procedure is fully documented and that "+
			"qualification requirements are proportionate to the contract scope.")
}

func nonCompetitiveExemption(in Input) []domain.ActionItem {
	if !in.Record.Procedure.IsNonCompetitive() || !in.Record.ValueAbove(200_000) {
		return nil
	}
	return item(domain.PriorityHigh, ActionVerifyExemption, fmt.Sprintf(
		"Non-competitive procedure on a %s contract requires documented exemption under "+
			"RHS § 28. Ensure the specific legal basis is cited and the reasoning is recorded.",
		domain.FormatEUR(in.Record.EstimatedValue)))
}

func criteriaDesign(in Input) []domain.ActionItem {
	pw, qw := in.Features.PriceWeight(), in.Features.QualityWeight()
	if domain.IsPriceOnly(pw, qw) && in.Record.ContractType == domain.ContractServices && in.Record.ValueAbove(200_000) {
		return item(domain.PriorityMedium, ActionAddQuality,
			"Price-only evaluation for complex services risks selecting providers "+
				"who undercut on quality. Even a 70/30 price/quality split with clear "+
				"methodology can improve outcomes. VAKO precedents show quality criteria "+
				"disputes are easier to defend when methodology is well-documented.")
	}
	if ratio := domain.QualityRatio(pw, qw); ratio > 0.5 {
		return item(domain.PriorityMedium, ActionScoringMethodology, fmt.Sprintf(
			"Quality weight is %s of evaluation. High quality weights are the most common "+
				"basis for VAKO challenges when the scoring methodology is vague. Specify: what "+
				"constitutes a high vs low score, provide examples or a scoring matrix, and "+
				"define how evaluators will reach consensus.", domain.Percent(ratio)))
	}
	return nil
}

// narrativeText is the lower-cased scenario joined with the issue labels.
func narrativeText(n *domain.NarrativeResult) string {
	if n == nil {
		return ""
	}
	parts := []string{n.Scenario}
	for _, issue := range n.Issues {
		parts = append(parts, issue.Label)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func containsAny(text string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func narrativeQualification(in Input) []domain.ActionItem {
	if !containsAny(narrativeText(in.Narrative), "qualification", "experience") {
		return nil
	}
	return item(domain.PriorityMedium, ActionQualification,
		"The document analysis identified qualification requirements as a potential "+
			"dispute trigger. Ensure turnover requirements are at most 2x annual "+
			"contract value (RHS § 38), and that experience requirements match "+
			"the actual contract scope rather than excluding capable newcomers.")
}

func narrativeBrand(in Input) []domain.ActionItem {
	if !containsAny(narrativeText(in.Narrative), "brand", "specific") {
		return nil
	}
	return item(domain.PriorityHigh, ActionFunctionalSpecs,
		"Brand-name restrictions are among the most commonly sustained VAKO "+
			"challenges. Replace specific product references with functional "+
			"requirements, or add 'or equivalent' language with clear criteria "+
			"for evaluating equivalence.")
}

func narrativeSubjective(in Input) []domain.ActionItem {
	if !containsAny(narrativeText(in.Narrative), "subjective", "vague", "unclear") {
		return nil
	}
	return item(domain.PriorityMedium, ActionClarifyCriteria,
		"The document analysis identified potentially vague criteria. "+
			"For each quality criterion, document: (1) what is being evaluated, "+
			"(2) the scoring scale with descriptions for each level, "+
			"(3) how evaluator consensus is reached.")
}

func buyerMarketEngagement(in Input) []domain.ActionItem {
	if in.Buyer == nil || in.Buyer.SingleBidderRate <= 0.3 {
		return nil
	}
	return item(domain.PriorityLow, ActionMarketEngagement, fmt.Sprintf(
		"This buyer receives single bids in %s of procurements. Consider a prior "+
			"information notice, market consultation, or published technical dialogue "+
			"to increase awareness and competition.", domain.Percent(in.Buyer.SingleBidderRate)))
}

func buyerDisputeLessons(in Input) []domain.ActionItem {
	if in.Buyer == nil || in.Buyer.DisputeCount < 3 {
		return nil
	}
	return item(domain.PriorityMedium, ActionDisputeLessons, fmt.Sprintf(
		"This buyer has %d VAKO disputes on record. Review past dispute decisions for "+
			"recurring issues that could be addressed in this procurement's design.",
		in.Buyer.DisputeCount))
}

func itVendorLockIn(in Input) []domain.ActionItem {
	if in.Record.Sector != domain.SectorIT || !in.Record.ValueAbove(1_000_000) {
		return nil
	}
	return item(domain.PriorityLow, ActionVendorLockIn,
		"IT procurements above €1M with specific technology requirements "+
			"frequently face challenges about vendor lock-in. Ensure requirements "+
			"describe outcomes, not specific technologies, where possible.")
}
