package quality

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/procuresight/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func inputFor(rec *domain.Procurement) Input {
	return Input{
		Features:  domain.EncodeFeatures(rec),
		Procedure: rec.Procedure,
		Contract:  rec.ContractType,
		Sector:    rec.Sector,
	}
}

func TestCompetition(t *testing.T) {
	tests := []struct {
		name    string
		proc    domain.Procedure
		tenders *int
		score   int
		finding string
	}{
		{"open with many tenders", domain.ProcedureOpen, intPtr(6), 20, "Open procedure maximizes competition. 6 tenders received (excellent)."},
		{"restricted adequate", domain.ProcedureRestricted, intPtr(3), 16, "Restricted procedure: good if qualification stage is proportionate. 3 tenders received (adequate)."},
		{"single source single bid", domain.ProcedureSingleSource, intPtr(1), 0, "Non-competitive procedure significantly limits access. Only 1 tender received (poor competition)."},
		{"negotiated with call two bids", domain.ProcedureNegotiatedWithCall, intPtr(2), 8, "Negotiated procedure may limit competition."},
		{"unknown tenders", domain.ProcedureNegotiatedWithout, nil, 2, "Non-competitive procedure significantly limits access."},
		{"simplified only tenders", domain.ProcedureSimplified, intPtr(5), 15, "5 tenders received (excellent)."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &domain.Procurement{Procedure: tt.proc, TenderCount: tt.tenders}
			d := Assess(inputFor(rec)).Dimensions[domain.DimensionCompetition]
			assert.Equal(t, tt.score, d.Score)
			assert.Equal(t, tt.finding, d.Finding)
			assert.Equal(t, MaxDimension, d.Max)
		})
	}
}

func TestCriteria(t *testing.T) {
	tests := []struct {
		name     string
		contract domain.ContractType
		pw, qw   float64
		score    int
		finding  string
	}{
		{"price-only services", domain.ContractServices, 1, 0, 4, "Price-only evaluation on services contract risks quality degradation."},
		{"price-only supplies", domain.ContractSupplies, 100, 0, 8, "Price-only evaluation. Acceptable for standardized goods."},
		{"strong quality share", domain.ContractServices, 60, 40, 15, "Quality weight 40% ensures value-for-money evaluation."},
		{"modest quality share", domain.ContractServices, 0.85, 0.15, 12, "Quality weight 15% is modest but present."},
		{"token quality share", domain.ContractServices, 0.95, 0.05, 10, ""},
		{"no weights", domain.ContractServices, 0, 0, 6, "No evaluation criteria weights published."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &domain.Procurement{ContractType: tt.contract, PriceWeight: tt.pw, QualityWeight: tt.qw}
			d := Assess(inputFor(rec)).Dimensions[domain.DimensionCriteria]
			assert.Equal(t, tt.score, d.Score)
			assert.Equal(t, tt.finding, d.Finding)
		})
	}
}

func TestNoCriteriaScenario(t *testing.T) {
	rec := &domain.Procurement{Procedure: domain.ProcedureOpen, ContractType: domain.ContractWorks}
	d := Assess(inputFor(rec)).Dimensions[domain.DimensionCriteria]
	assert.LessOrEqual(t, d.Score, 6)
}

func TestStrategic(t *testing.T) {
	tests := []struct {
		name                    string
		green, social, innovate bool
		score                   int
		finding                 string
	}{
		{"none", false, false, false, 5, "No strategic criteria included."},
		{"green", true, false, false, 12, "Strategic criteria: environmental."},
		{"all", true, true, true, 20, "Strategic criteria: environmental, social, innovation."},
		{"social and innovation", false, true, true, 17, "Strategic criteria: social, innovation."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &domain.Procurement{HasGreen: tt.green, HasSocial: tt.social, HasInnovation: tt.innovate}
			d := Assess(inputFor(rec)).Dimensions[domain.DimensionStrategic]
			assert.Equal(t, tt.score, d.Score)
			assert.Equal(t, tt.finding, d.Finding)
		})
	}
}

func TestTransparency(t *testing.T) {
	tests := []struct {
		name     string
		value    *float64
		deadline *float64
		score    int
		finding  string
	}{
		{"published with long deadline", floatPtr(100_000), floatPtr(30), 18, "Value published. Deadline 30 days (adequate)."},
		{"published with short deadline", floatPtr(100_000), floatPtr(15), 16, "Value published. Deadline 15 days (short)."},
		{"unpublished very short", nil, floatPtr(7), 5, "Value not published. Deadline 7 days (very short)."},
		{"deadline unknown", nil, nil, 8, "Value not published."},
		{"zero value with one-day deadline", floatPtr(0), floatPtr(1), 12, "Value published. Deadline 1 days (very short)."},
		{"half-day deadline", nil, floatPtr(0.5), 5, "Value not published. Deadline 0 days (very short)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &domain.Procurement{EstimatedValue: tt.value, DeadlineDays: tt.deadline}
			d := Assess(inputFor(rec)).Dimensions[domain.DimensionTransparency]
			assert.Equal(t, tt.score, d.Score)
			assert.Equal(t, tt.finding, d.Finding)
		})
	}
}

func TestIntegrity(t *testing.T) {
	high := domain.IntegrityFlag{Name: "Political Donor Link", Severity: domain.SeverityHigh}
	medium := domain.IntegrityFlag{Name: "Young Company", Severity: domain.SeverityMedium}
	low := domain.IntegrityFlag{Name: "Minor", Severity: domain.SeverityLow}

	tests := []struct {
		name    string
		flags   []domain.IntegrityFlag
		buyer   *domain.BuyerProfile
		score   int
		finding string
	}{
		{"clean", nil, nil, 16, "No integrity concerns identified."},
		{"high and medium", []domain.IntegrityFlag{high, medium}, nil, 7, "2 integrity flag(s) identified."},
		{"low severity not penalized", []domain.IntegrityFlag{low}, nil, 16, "1 integrity flag(s) identified."},
		{"troubled buyer", nil, &domain.BuyerProfile{DisputeCount: 3, SingleBidderRate: 0.6}, 11,
			"No integrity concerns identified. Buyer has multiple past disputes. Buyer has high single-bidder rate."},
		{"clamped at zero", []domain.IntegrityFlag{high, high, high}, &domain.BuyerProfile{DisputeCount: 5, SingleBidderRate: 0.9}, 0,
			"3 integrity flag(s) identified. Buyer has multiple past disputes. Buyer has high single-bidder rate."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := inputFor(&domain.Procurement{})
			in.Flags = tt.flags
			in.Buyer = tt.buyer
			d := Assess(in).Dimensions[domain.DimensionIntegrity]
			assert.Equal(t, tt.score, d.Score)
			assert.Equal(t, tt.finding, d.Finding)
		})
	}
}

func TestAssessOverall(t *testing.T) {
	rec := &domain.Procurement{
		Procedure:      domain.ProcedureOpen,
		ContractType:   domain.ContractServices,
		EstimatedValue: floatPtr(250_000),
		PriceWeight:    0.6,
		QualityWeight:  0.4,
		TenderCount:    intPtr(5),
		DeadlineDays:   floatPtr(35),
		HasGreen:       true,
		HasSocial:      true,
	}
	qa := Assess(inputFor(rec))

	// 20 + 15 + 16 + 18 + 16
	assert.Equal(t, 85, qa.OverallScore)
	assert.Equal(t, LabelExcellent, qa.Label)
	assert.Equal(t, "This procurement demonstrates strong practices across all dimensions.", qa.Summary)

	ordered := qa.Ordered()
	require.Len(t, ordered, 5)
	for i, d := range ordered {
		assert.Equal(t, domain.DimensionNames[i], d.Name)
		assert.Contains(t, d.Explanation, d.Finding)
	}
}

func TestLabelAndSummaryBrackets(t *testing.T) {
	tests := []struct {
		overall int
		label   string
	}{
		{100, LabelExcellent},
		{80, LabelExcellent},
		{79, LabelGood},
		{60, LabelGood},
		{59, LabelFair},
		{40, LabelFair},
		{39, LabelNeedsImprovement},
		{0, LabelNeedsImprovement},
	}
	for _, tt := range tests {
		if got := Label(tt.overall); got != tt.label {
			t.Errorf("Label(%d) = %q, want %q", tt.overall, got, tt.label)
		}
	}
	assert.Equal(t, "Significant improvements needed across multiple dimensions.", Summary(12))
	assert.Equal(t, "Several dimensions need attention. Review recommendations carefully.", Summary(45))
}

func TestScoresAlwaysClamped(t *testing.T) {
	procedures := domain.Procedures
	contracts := domain.ContractTypes
	severities := []domain.Severity{domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("dimensions in [0,20] and overall in [0,100]", prop.ForAll(
		func(proc, ct, tenders int, pw, qw, deadline float64, flags []int, disputes int, sbr float64, strategic int) bool {
			rec := &domain.Procurement{
				Procedure:     procedures[proc],
				ContractType:  contracts[ct],
				PriceWeight:   pw,
				QualityWeight: qw,
				HasGreen:      strategic&1 != 0,
				HasSocial:     strategic&2 != 0,
				HasInnovation: strategic&4 != 0,
			}
			if tenders >= 0 {
				rec.TenderCount = intPtr(tenders)
			}
			if deadline > 0 {
				rec.DeadlineDays = floatPtr(deadline)
			}
			in := inputFor(rec)
			for _, f := range flags {
				in.Flags = append(in.Flags, domain.IntegrityFlag{Severity: severities[f]})
			}
			in.Buyer = &domain.BuyerProfile{DisputeCount: disputes, SingleBidderRate: sbr}

			qa := Assess(in)
			sum := 0
			for _, d := range qa.Dimensions {
				if d.Score < 0 || d.Score > MaxDimension {
					return false
				}
				sum += d.Score
			}
			return len(qa.Dimensions) == 5 && sum == qa.OverallScore &&
				qa.OverallScore >= 0 && qa.OverallScore <= 100
		},
		gen.IntRange(0, len(procedures)-1),
		gen.IntRange(0, len(contracts)-1),
		gen.IntRange(-1, 20),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 90),
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.IntRange(0, 10),
		gen.Float64Range(0, 1),
		gen.IntRange(0, 7),
	))

	properties.TestingRun(t)
}
