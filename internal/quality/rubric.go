// Package quality scores a procurement's design on five 0-20 dimensions.
package quality

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// MaxDimension is the ceiling of every dimension score.
const MaxDimension = 20

// Overall score labels.
const (
	LabelExcellent        = "Excellent"
	LabelGood             = "Good"
	LabelFair             = "Fair"
	LabelNeedsImprovement = "Needs Improvement"
)

// Input carries what the rubric reads. Buyer and Flags are optional.
type Input struct {
	Features  domain.FeatureVector
	Procedure domain.Procedure
	Contract  domain.ContractType
	Sector    domain.Sector
	Buyer     *domain.BuyerProfile
	Flags     []domain.IntegrityFlag
}

var explanations = map[string]string{
	domain.DimensionCompetition: "Measures whether the procurement design encourages broad participation. " +
		"Open procedures, reasonable deadlines, and proportionate qualifications " +
		"attract more bidders and lead to better value for money.",
	domain.DimensionCriteria: "Evaluates whether the award criteria are well-designed to select the best " +
		"offer rather than just the cheapest. Quality criteria with clear scoring " +
		"methodology reduce disputes and improve outcomes.",
	domain.DimensionStrategic: "Assesses whether the procurement leverages public spending to advance " +
		"policy goals (green transition, social inclusion, innovation). Estonia's " +
		"national procurement strategy encourages these criteria.",
	domain.DimensionTransparency: "Measures how well the procurement is documented and accessible. " +
		"Published values, adequate deadlines, and clear specifications " +
		"allow suppliers to make informed decisions about bidding.",
	domain.DimensionIntegrity: "Evaluates the integrity environment around the procurement: political " +
		"connections, ownership structures, buyer track record, and price benchmarks.",
}

// Assess computes all five dimensions and the overall score.
func Assess(in Input) *domain.QualityAssessment {
	dims := []*domain.QualityDimension{
		competition(in),
		criteria(in),
		strategic(in),
		transparency(in),
		integrity(in),
	}

	qa := &domain.QualityAssessment{Dimensions: make(map[string]*domain.QualityDimension, len(dims))}
	for _, d := range dims {
		qa.Dimensions[d.Name] = d
		qa.OverallScore += d.Score
	}
	qa.Label = Label(qa.OverallScore)
	qa.Summary = Summary(qa.OverallScore)
	return qa
}

// Label maps an overall score to its qualitative label.
func Label(overall int) string {
	switch {
	case overall >= 80:
		return LabelExcellent
	case overall >= 60:
		return LabelGood
	case overall >= 40:
		return LabelFair
	default:
		return LabelNeedsImprovement
	}
}

// Summary returns the sentence for an overall score bracket.
func Summary(overall int) string {
	switch {
	case overall >= 80:
		return "This procurement demonstrates strong practices across all dimensions."
	case overall >= 60:
		return "Good foundation with specific areas for improvement identified below."
	case overall >= 40:
		return "Several dimensions need attention. Review recommendations carefully."
	default:
		return "Significant improvements needed across multiple dimensions."
	}
}

// tally accumulates one dimension's score and finding text.
type tally struct {
	score   int
	finding strings.Builder
}

func (t *tally) add(delta int, text string) {
	t.score += delta
	if text == "" {
		return
	}
	if t.finding.Len() > 0 {
		t.finding.WriteByte(' ')
	}
	t.finding.WriteString(text)
}

func (t *tally) replace(text string) {
	t.finding.Reset()
	t.finding.WriteString(text)
}

func (t *tally) dimension(name string) *domain.QualityDimension {
	finding := t.finding.String()
	explanation := explanations[name]
	if finding != "" {
		explanation += " " + finding
	}
	return &domain.QualityDimension{
		Name:        name,
		Score:       clamp(t.score),
		Max:         MaxDimension,
		Finding:     finding,
		Explanation: explanation,
	}
}

func clamp(score int) int {
	return max(0, min(MaxDimension, score))
}

func competition(in Input) *domain.QualityDimension {
	t := &tally{score: 10}
	switch {
	case in.Procedure == domain.ProcedureOpen:
		t.add(5, "Open procedure maximizes competition.")
	case in.Procedure == domain.ProcedureRestricted:
		t.add(3, "Restricted procedure: good if qualification stage is proportionate.")
	case in.Procedure.IsNonCompetitive():
		t.add(-8, "Non-competitive procedure significantly limits access.")
	case in.Procedure == domain.ProcedureNegotiatedWithCall:
		t.add(-2, "Negotiated procedure may limit competition.")
	}

	if tenders, ok := in.Features.Tenders(); ok {
		switch {
		case tenders >= 5:
			t.add(5, fmt.Sprintf("%d tenders received (excellent).", tenders))
		case tenders >= 3:
			t.add(3, fmt.Sprintf("%d tenders received (adequate).", tenders))
		case tenders == 1:
			t.add(-5, "Only 1 tender received (poor competition).")
		}
	}
	return t.dimension(domain.DimensionCompetition)
}

func criteria(in Input) *domain.QualityDimension {
	t := &tally{score: 10}
	pw, qw := in.Features.PriceWeight(), in.Features.QualityWeight()
	ratio := domain.QualityRatio(pw, qw)

	switch {
	case domain.IsPriceOnly(pw, qw) && in.Contract == domain.ContractServices:
		t.add(-6, "Price-only evaluation on services contract risks quality degradation.")
	case domain.IsPriceOnly(pw, qw):
		t.add(-2, "Price-only evaluation. Acceptable for standardized goods.")
	case ratio >= 0.3:
		t.add(5, fmt.Sprintf("Quality weight %s ensures value-for-money evaluation.", domain.Percent(ratio)))
	case ratio >= 0.1:
		t.add(2, fmt.Sprintf("Quality weight %s is modest but present.", domain.Percent(ratio)))
	}

	// Stacks with any branch above.
	if pw == 0 && qw == 0 {
		t.add(-4, "")
		t.replace("No evaluation criteria weights published.")
	}
	return t.dimension(domain.DimensionCriteria)
}

func strategic(in Input) *domain.QualityDimension {
	t := &tally{score: 8}
	var present []string
	if in.Features.HasGreen() {
		t.score += 4
		present = append(present, "environmental")
	}
	if in.Features.HasSocial() {
		t.score += 4
		present = append(present, "social")
	}
	if in.Features.HasInnovation() {
		t.score += 5
		present = append(present, "innovation")
	}

	if len(present) > 0 {
		t.add(0, fmt.Sprintf("Strategic criteria: %s.", strings.Join(present, ", ")))
	} else {
		t.add(-3, "No strategic criteria included.")
	}
	return t.dimension(domain.DimensionStrategic)
}

func transparency(in Input) *domain.QualityDimension {
	t := &tally{score: 12}
	if _, ok := in.Features.Value(); ok {
		t.add(3, "Value published.")
	} else {
		t.add(-4, "Value not published.")
	}

	if days, ok := in.Features.DeadlineDays(); ok {
		switch {
		case days >= 30:
			t.add(3, fmt.Sprintf("Deadline %.0f days (adequate).", days))
		case days >= 15:
			t.add(1, fmt.Sprintf("Deadline %.0f days (short).", days))
		default:
			t.add(-3, fmt.Sprintf("Deadline %.0f days (very short).", days))
		}
	}
	return t.dimension(domain.DimensionTransparency)
}

func integrity(in Input) *domain.QualityDimension {
	t := &tally{score: 16}
	if len(in.Flags) > 0 {
		for _, f := range in.Flags {
			switch f.Severity {
			case domain.SeverityHigh:
				t.score -= 6
			case domain.SeverityMedium:
				t.score -= 3
			}
		}
		t.add(0, fmt.Sprintf("%d integrity flag(s) identified.", len(in.Flags)))
	} else {
		t.add(0, "No integrity concerns identified.")
	}

	if b := in.Buyer; b != nil {
		if b.DisputeCount >= 3 {
			t.add(-3, "Buyer has multiple past disputes.")
		}
		if b.SingleBidderRate > 0.5 {
			t.add(-2, "Buyer has high single-bidder rate.")
		}
	}
	return t.dimension(domain.DimensionIntegrity)
}
