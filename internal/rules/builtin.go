package rules

import (
	"fmt"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// Input is everything the rules see for one record. Buyer and Title are optional.
type Input struct {
	Record *domain.Procurement
	Buyer  *domain.BuyerProfile
	Title  string
}

// check returns a finding detail when the rule triggers.
type check func(c *Catalog, in *Input) (string, bool)

type builtin struct {
	id    string
	check check
}

// builtins in evaluation order: procedure, evaluation criteria, brand scan,
// buyer pattern, data quality.
var builtins = []builtin{
	{RuleNonCompetitiveHighValue, nonCompetitiveHighValue},
	{RuleSingleSourceWorks, singleSourceWorks},
	{RulePriceOnlyHighServices, priceOnlyHighServices},
	{RuleNoCriteria, noCriteria},
	{RuleBrandName, brandName},
	{RuleLowCompetitionBuyer, lowCompetitionBuyer},
	{RulePriceOnlyDisputedBuyer, priceOnlyDisputedBuyer},
	{RuleMissingBuyer, missingBuyer},
}

func nonCompetitiveHighValue(_ *Catalog, in *Input) (string, bool) {
	r := in.Record
	if !r.Procedure.IsNonCompetitive() || !r.ValueAbove(200_000) {
		return "", false
	}
	return fmt.Sprintf("Value %s awarded via %s. Contracts above EU thresholds normally "+
		"require competitive procedures. Justification should be documented (RHS § 28).",
		domain.FormatEUR(r.EstimatedValue), r.Procedure.Label()), true
}

func singleSourceWorks(_ *Catalog, in *Input) (string, bool) {
	r := in.Record
	if !r.Procedure.IsNonCompetitive() || r.ContractType != domain.ContractWorks || !r.ValueAbove(5_000_000) {
		return "", false
	}
	return fmt.Sprintf("Works contract worth %s without competition. "+
		"This exceeds the EU threshold for works.", domain.FormatEUR(r.EstimatedValue)), true
}

func priceOnlyHighServices(_ *Catalog, in *Input) (string, bool) {
	r := in.Record
	if !domain.IsPriceOnly(r.PriceWeight, r.QualityWeight) ||
		!r.ValueAbove(500_000) || r.ContractType != domain.ContractServices {
		return "", false
	}
	return fmt.Sprintf("Services contract worth %s evaluated on price alone. "+
		"Quality criteria recommended for complex services.", domain.FormatEUR(r.EstimatedValue)), true
}

func noCriteria(_ *Catalog, in *Input) (string, bool) {
	r := in.Record
	if r.PriceWeight != 0 || r.QualityWeight != 0 || !r.Procedure.IsCompetitive() {
		return "", false
	}
	return "Neither price nor quality weights are defined for a competitive procedure.", true
}

func brandName(c *Catalog, in *Input) (string, bool) {
	m, ok := c.MatchBrand(in.Title)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("Procurement title contains '%s': %q - If this refers to a specific "+
		"product or vendor, the specification should include 'or equivalent' language.",
		m, truncate(in.Title, 120)), true
}

func lowCompetitionBuyer(_ *Catalog, in *Input) (string, bool) {
	b := in.Buyer
	if b == nil || b.ProcurementCount < 10 || b.SingleBidderRate < 0.6 {
		return "", false
	}
	return fmt.Sprintf("%s receives a single bid in %s of procurements (across %d total).",
		in.Record.BuyerName, domain.Percent(b.SingleBidderRate), b.ProcurementCount), true
}

func priceOnlyDisputedBuyer(_ *Catalog, in *Input) (string, bool) {
	b := in.Buyer
	if b == nil || b.PriceOnlyRate < 0.95 || b.DisputeCount < 2 {
		return "", false
	}
	return fmt.Sprintf("%s: %s price-only with %d VAKO disputes.",
		in.Record.BuyerName, domain.Percent(b.PriceOnlyRate), b.DisputeCount), true
}

func missingBuyer(_ *Catalog, in *Input) (string, bool) {
	if in.Record.HasBuyer() {
		return "", false
	}
	return "Contracting authority not identified.", true
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
