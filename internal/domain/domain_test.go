package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestParseCategories(t *testing.T) {
	s, err := ParseSector("construction")
	require.NoError(t, err)
	assert.Equal(t, SectorConstruction, s)

	s, err = ParseSector("")
	require.NoError(t, err)
	assert.Equal(t, Sector(""), s)

	_, err = ParseSector("space")
	assert.ErrorIs(t, err, ErrUnknownCategory)

	p, err := ParseProcedure("oth-single")
	require.NoError(t, err)
	assert.True(t, p.IsNonCompetitive())
	assert.False(t, p.IsCompetitive())
	assert.Equal(t, "Single source", p.Label())

	_, err = ParseProcedure("auction")
	assert.ErrorIs(t, err, ErrUnknownCategory)

	c, err := ParseContractType("works")
	require.NoError(t, err)
	assert.Equal(t, ContractWorks, c)

	_, err = ParseContractType("lease")
	assert.ErrorIs(t, err, ErrUnknownCategory)

	sev, err := ParseSeverity("high")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, sev)

	_, err = ParseSeverity("urgent")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestIsPriceOnly(t *testing.T) {
	cases := map[string]struct {
		price, quality float64
		want           bool
	}{
		"price only":          {1, 0, true},
		"unnormalized":        {80, 0, true},
		"negligible quality":  {0.995, 0.005, true},
		"mixed":               {0.6, 0.4, false},
		"no weights":          {0, 0, false},
		"quality only":        {0, 1, false},
		"two percent quality": {0.98, 0.02, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsPriceOnly(tc.price, tc.quality))
		})
	}

	assert.Equal(t, 0.0, QualityRatio(0, 0))
	assert.InDelta(t, 0.4, QualityRatio(60, 40), 1e-12)
}

func TestProcurementValue(t *testing.T) {
	p := &Procurement{EstimatedValue: floatPtr(150_000)}
	assert.True(t, p.ValueAbove(100_000))
	assert.False(t, p.ValueAbove(150_000))

	p.EstimatedValue = nil
	_, ok := p.Value()
	assert.False(t, ok)
	assert.False(t, p.ValueAbove(0))

	assert.False(t, (&Procurement{BuyerName: "  "}).HasBuyer())
	assert.True(t, (&Procurement{BuyerName: "Tartu"}).HasBuyer())
}

func TestEncodeFeatures(t *testing.T) {
	p := &Procurement{
		ID:             "a",
		Sector:         SectorIT,
		Procedure:      ProcedureOpen,
		ContractType:   ContractServices,
		EstimatedValue: floatPtr(6_000_000),
		PriceWeight:    0.7,
		QualityWeight:  0.3,
		TenderCount:    intPtr(0),
		DeadlineDays:   floatPtr(30),
		HasGreen:       true,
	}
	f := EncodeFeatures(p)

	v, ok := f.Value()
	require.True(t, ok)
	assert.Equal(t, 6_000_000.0, v)

	d, ok := f.DeadlineDays()
	require.True(t, ok)
	assert.Equal(t, 30.0, d)

	n, ok := f.Tenders()
	require.True(t, ok)
	assert.Equal(t, 0, n)

	assert.True(t, f.InSector(SectorIT))
	assert.False(t, f.InSector(SectorConstruction))
	assert.True(t, f.HasProcedure(ProcedureOpen))
	assert.Equal(t, 1.0, f[ContractFeature(ContractServices)])
	assert.True(t, f.HasGreen())
	assert.False(t, f.HasSocial())
	assert.Equal(t, 0.7, f.PriceWeight())
	assert.Equal(t, 0.3, f.QualityWeight())

	t.Run("missing fields", func(t *testing.T) {
		f := EncodeFeatures(&Procurement{ID: "b"})

		_, ok := f.Value()
		assert.False(t, ok)
		assert.Equal(t, 1.0, f[FeatureValueMissing])
		_, ok = f.DeadlineDays()
		assert.False(t, ok)
		n, ok := f.Tenders()
		assert.False(t, ok)
		assert.Equal(t, -1, n)
	})

	t.Run("zero value is published", func(t *testing.T) {
		f := EncodeFeatures(&Procurement{ID: "c", EstimatedValue: floatPtr(0)})

		v, ok := f.Value()
		require.True(t, ok)
		assert.Equal(t, 0.0, v)
		assert.Equal(t, 0.0, f[FeatureValueMissing])
	})

	t.Run("short deadlines are known", func(t *testing.T) {
		for _, days := range []float64{0, 0.5, 1} {
			f := EncodeFeatures(&Procurement{ID: "d", DeadlineDays: floatPtr(days)})

			d, ok := f.DeadlineDays()
			require.True(t, ok, "deadline %v", days)
			assert.Equal(t, days, d)
		}
	})

	t.Run("vector without value flag", func(t *testing.T) {
		_, ok := FeatureVector{FeatureLogValue: 10}.Value()
		assert.False(t, ok)
	})
}

func TestFormatEUR(t *testing.T) {
	cases := []struct {
		in   *float64
		want string
	}{
		{nil, "-"},
		{floatPtr(6_000_000), "€6.0M"},
		{floatPtr(1_234_567_890), "€1,234.6M"},
		{floatPtr(250_000), "€250K"},
		{floatPtr(999), "€999"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatEUR(tc.in))
	}
	assert.Equal(t, "12%", Percent(0.123))
}

func TestLinearModelValidate(t *testing.T) {
	good := &LinearModel{
		FeatureNames: []string{"a", "b"},
		Coefficients: []float64{1, 2},
		Center:       []float64{0, 0},
		Scale:        []float64{1, 1},
	}
	require.NoError(t, good.Validate())

	var nilModel *LinearModel
	assert.ErrorIs(t, nilModel.Validate(), ErrModelShape)
	assert.ErrorIs(t, (&LinearModel{}).Validate(), ErrModelShape)

	short := *good
	short.Scale = []float64{1}
	assert.ErrorIs(t, short.Validate(), ErrModelShape)

	dup := *good
	dup.FeatureNames = []string{"a", "a"}
	assert.ErrorIs(t, dup.Validate(), ErrModelShape)
}

func TestSnapshot(t *testing.T) {
	records := []*Record{
		{Procurement: Procurement{ID: "c"}},
		{Procurement: Procurement{ID: "a"}},
		{Procurement: Procurement{ID: "b"}},
	}
	f := &Fixture{
		Version:  "v1",
		Records:  records,
		Buyers:   []*BuyerProfile{{Name: "Tartu"}},
		Disputes: map[string][]Dispute{"b": {{DisputeID: "d1"}}},
	}
	s := f.Snapshot()

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, "v1", s.Version)
	assert.NotNil(t, s.Record("a"))
	assert.Nil(t, s.Record("z"))
	assert.NotNil(t, s.Buyer("Tartu"))
	assert.Nil(t, s.Buyer(""))
	assert.True(t, s.IsDisputed("b"))
	assert.False(t, s.IsDisputed("a"))

	var seen []string
	s.Each(func(r *Record) bool {
		seen = append(seen, r.ID)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	seen = nil
	s.Each(func(r *Record) bool {
		seen = append(seen, r.ID)
		return len(seen) < 2
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestAssessmentHelpers(t *testing.T) {
	a := &Assessment{Findings: []ComplianceFinding{{Severity: SeverityMedium}}}
	assert.False(t, a.HasHighSeverity())
	a.Findings = append(a.Findings, ComplianceFinding{Severity: SeverityHigh})
	assert.True(t, a.HasHighSeverity())

	assert.True(t, IssueLabel{SustainProbability: "medium"}.Likely())
	assert.False(t, IssueLabel{SustainProbability: "low"}.Likely())
}
