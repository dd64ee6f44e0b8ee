package assess

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/procuresight/internal/attribution"
	"github.com/opensource-finance/procuresight/internal/domain"
	"github.com/opensource-finance/procuresight/internal/rules"
	"github.com/opensource-finance/procuresight/internal/sample"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func newAssessor(t *testing.T, snap *domain.Snapshot) *Assessor {
	t.Helper()
	catalog, err := rules.DefaultCatalog()
	require.NoError(t, err)
	a, err := New(catalog, domain.DefaultConfig().Engine, nil)
	require.NoError(t, err)
	if snap != nil {
		require.NoError(t, a.Load(snap))
	}
	return a
}

func singleSourceSnapshot() *domain.Snapshot {
	p := domain.Procurement{
		ID:             "r1",
		BuyerName:      "Tallinn City",
		Sector:         domain.SectorConstruction,
		Procedure:      domain.ProcedureSingleSource,
		ContractType:   domain.ContractWorks,
		EstimatedValue: floatPtr(6_000_000),
		PriceWeight:    1,
		TenderCount:    intPtr(1),
		RiskScore:      0.21,
	}
	rec := &domain.Record{
		Procurement: p,
		Features:    domain.EncodeFeatures(&p),
		Title:       "Hanke objektiks on koolihoone rekonstrueerimistööd. Lisaks tehakse muid töid.",
	}
	snap := domain.NewSnapshot("test", sample.Model(), []*domain.Record{rec})
	snap.Buyers["Tallinn City"] = &domain.BuyerProfile{
		Name:             "Tallinn City",
		ProcurementCount: 40,
		SingleBidderRate: 0.65,
		PriceOnlyRate:    0.97,
		DisputeCount:     3,
	}
	snap.Disputes["r1"] = []domain.Dispute{{DisputeID: "d1", Status: "decided"}}
	return snap
}

func TestAssessSingleSourceWorks(t *testing.T) {
	a := newAssessor(t, singleSourceSnapshot())

	as, err := a.Assess(context.Background(), "r1")
	require.NoError(t, err)

	assert.NotEmpty(t, as.ID)
	assert.Equal(t, "r1", as.RecordID)
	assert.Equal(t, "koolihoone rekonstrueerimistööd", as.Title)
	assert.Equal(t, attribution.LabelHigh, as.RiskLabel)
	assert.Empty(t, as.ComponentErrors)
	assert.Equal(t, EngineVersion, as.Metadata.EngineVersion)
	assert.Equal(t, 8, as.Metadata.RulesApplied)
	assert.NotEmpty(t, as.Metadata.TraceID)
	for _, c := range []string{ComponentAttribution, ComponentCompliance, ComponentQuality, ComponentComparables} {
		assert.Contains(t, as.Metadata.ComponentMs, c)
	}

	var ids []string
	for _, f := range as.Findings {
		ids = append(ids, f.RuleID)
	}
	assert.Equal(t, []string{
		rules.RuleNonCompetitiveHighValue,
		rules.RuleSingleSourceWorks,
		rules.RuleLowCompetitionBuyer,
		rules.RulePriceOnlyDisputedBuyer,
	}, ids)
	assert.True(t, as.HasHighSeverity())

	require.NotNil(t, as.Quality)
	assert.Len(t, as.Quality.Dimensions, 5)
	assert.NotEmpty(t, as.Actions)
	assert.Empty(t, as.Comparables, "only record is excluded from its own comparables")
	require.NotNil(t, as.Benchmark)
	assert.Equal(t, 1, as.Benchmark.Total)
	assert.Len(t, as.Disputes, 1)

	assert.NotEmpty(t, as.Contributions)
	assert.LessOrEqual(t, len(as.Contributions), attribution.DefaultTop)

	assert.Contains(t, as.Summary, "21.0% risk score")
	assert.Contains(t, as.Summary, "high risk category")
	assert.Contains(t, as.Summary, "dispute(s) on record")
}

func TestAssessUnknownRecord(t *testing.T) {
	a := newAssessor(t, singleSourceSnapshot())

	_, err := a.Assess(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNoData))

	_, err = a.Contributions(context.Background(), "missing", 5)
	assert.True(t, errors.Is(err, domain.ErrNoData))
}

func TestAssessBeforeLoad(t *testing.T) {
	a := newAssessor(t, nil)
	_, err := a.Assess(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.Nil(t, a.Snapshot())
	assert.Equal(t, "", a.Version())
}

func TestAssessWithoutModel(t *testing.T) {
	snap := singleSourceSnapshot()
	snap.Model = nil
	a := newAssessor(t, snap)

	as, err := a.Assess(context.Background(), "r1")
	require.NoError(t, err)

	assert.Contains(t, as.ComponentErrors, ComponentAttribution)
	assert.Empty(t, as.Contributions)
	assert.NotEmpty(t, as.Findings, "other components still run")
	assert.NotNil(t, as.Quality)

	_, err = a.Contributions(context.Background(), "r1", 3)
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestAssessWithoutFeatures(t *testing.T) {
	p := domain.Procurement{
		ID:             "nf",
		Sector:         domain.SectorIT,
		Procedure:      domain.ProcedureOpen,
		ContractType:   domain.ContractServices,
		EstimatedValue: floatPtr(300_000),
		PriceWeight:    0.6,
		QualityWeight:  0.4,
	}
	snap := domain.NewSnapshot("test", sample.Model(), []*domain.Record{
		{Procurement: p, Features: domain.FeatureVector{}},
	})
	a := newAssessor(t, snap)

	as, err := a.Assess(context.Background(), "nf")
	require.NoError(t, err)

	for _, c := range []string{ComponentAttribution, ComponentQuality, ComponentActions} {
		assert.Contains(t, as.ComponentErrors[c], "no feature vector", c)
	}
	assert.Nil(t, as.Quality)
	assert.Empty(t, as.Actions)
	assert.Empty(t, as.Checklist)
	assert.NotContains(t, as.ComponentErrors, ComponentCompliance)

	_, err = a.Quality("nf")
	assert.ErrorIs(t, err, domain.ErrNoData)
	_, err = a.Actions("nf")
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestRunRecoversPanic(t *testing.T) {
	a := newAssessor(t, nil)
	as := &domain.Assessment{RecordID: "r1", Metadata: domain.AssessmentMetadata{ComponentMs: map[string]int64{}}}

	a.run(context.Background(), as, ComponentComparables, func() error {
		var snap *domain.Snapshot
		_ = snap.Records["x"]
		return nil
	})
	a.run(context.Background(), as, ComponentQuality, func() error { return nil })

	require.Contains(t, as.ComponentErrors, ComponentComparables)
	assert.True(t, strings.HasPrefix(as.ComponentErrors[ComponentComparables], ErrComponentPanic.Error()))
	assert.NotContains(t, as.ComponentErrors, ComponentQuality)
	assert.Contains(t, as.Metadata.ComponentMs, ComponentQuality)
}

func TestLoadRejectsBadWatchRule(t *testing.T) {
	a := newAssessor(t, singleSourceSnapshot())

	bad := singleSourceSnapshot()
	bad.Version = "bad"
	bad.CustomRules = []domain.CustomRule{{
		ID: "broken", Title: "Broken", Expression: "value >", Severity: domain.SeverityLow, Enabled: true,
	}}
	require.Error(t, a.Load(bad))
	assert.Equal(t, "test", a.Version(), "failed load keeps the previous snapshot")
}

func TestLoadRejectsBadModel(t *testing.T) {
	a := newAssessor(t, nil)
	snap := singleSourceSnapshot()
	snap.Model.Coefficients = snap.Model.Coefficients[:2]
	assert.ErrorIs(t, a.Load(snap), domain.ErrModelShape)
}

func TestQueries(t *testing.T) {
	fx := sample.Fixture(0)
	a := newAssessor(t, fx.Snapshot())
	id := fx.Records[0].ID

	top, err := a.Contributions(context.Background(), id, 3)
	require.NoError(t, err)
	assert.Len(t, top, 3)
	for i := 1; i < len(top); i++ {
		assert.LessOrEqual(t, top[i-1].Contribution, top[i].Contribution)
	}

	_, err = a.Findings(context.Background(), id)
	require.NoError(t, err)

	q, err := a.Quality(id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, q.OverallScore, 0)
	assert.LessOrEqual(t, q.OverallScore, 100)

	_, err = a.Actions(id)
	require.NoError(t, err)

	matches, err := a.Comparables(id)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 20)
	for _, m := range matches {
		assert.NotEqual(t, id, m.RecordID)
	}

	b, err := a.SectorBenchmark("IT")
	require.NoError(t, err)
	assert.True(t, b.Sufficient())

	_, err = a.SectorBenchmark("space")
	assert.ErrorIs(t, err, domain.ErrUnknownCategory)

	cmp, err := a.BuyerBenchmark(fx.Buyers[0].Name, "IT")
	require.NoError(t, err)
	assert.True(t, cmp.Sufficient)
	assert.Len(t, cmp.Axes, 4)

	_, err = a.BuyerBenchmark("Nobody", "IT")
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestAssessConcurrentWithReload(t *testing.T) {
	fx := sample.Fixture(60)
	a := newAssessor(t, fx.Snapshot())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for _, r := range fx.Records[i*5 : i*5+5] {
				as, err := a.Assess(context.Background(), r.ID)
				if assert.NoError(t, err) {
					assert.Equal(t, r.ID, as.RecordID)
				}
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, a.Load(fx.Snapshot()))
	}()
	wg.Wait()
}

func TestSummary(t *testing.T) {
	t.Run("low risk only", func(t *testing.T) {
		assert.Equal(t, "This procurement has a 2.5% risk score (low risk).", Summary(0.025, false, nil, nil))
	})

	t.Run("full", func(t *testing.T) {
		drivers := []domain.RiskContribution{
			{Feature: domain.FeaturePriceWeight, Contribution: 0.4},
			{Feature: domain.ProcedureFeature(domain.ProcedureSingleSource), Contribution: 0.2},
		}
		narrative := &domain.NarrativeResult{
			Scenario: "Bidder challenges the turnover requirement.",
			Issues: []domain.IssueLabel{
				{Label: "Turnover", SustainProbability: "high"},
				{Label: "Deadline", SustainProbability: "low"},
				{Label: "Brand", SustainProbability: "medium"},
			},
		}
		got := Summary(0.12, true, drivers, narrative)
		parts := strings.Split(got, "\n\n")
		require.Len(t, parts, 5)
		assert.Equal(t, "This procurement has a 12.0% risk score, placing it in the elevated risk category.", parts[0])
		assert.Equal(t, "It has active review dispute(s) on record.", parts[1])
		assert.Equal(t, "The main risk drivers are: price weight, procedure: single source.", parts[2])
		assert.Equal(t, "Document analysis identified: Turnover; Brand.", parts[3])
		assert.Equal(t, "Likely scenario: Bidder challenges the turnover requirement.", parts[4])
	})
}
