package benchmark

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/procuresight/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

func record(id string, sector domain.Sector, value *float64, pw, qw float64) *domain.Record {
	p := domain.Procurement{
		ID:             id,
		Sector:         sector,
		Procedure:      domain.ProcedureOpen,
		EstimatedValue: value,
		PriceWeight:    pw,
		QualityWeight:  qw,
	}
	return &domain.Record{Procurement: p, Features: domain.EncodeFeatures(&p)}
}

func TestSector(t *testing.T) {
	snap := domain.NewSnapshot("t", nil, []*domain.Record{
		record("1", domain.SectorEnergy, floatPtr(100), 1, 0),
		record("2", domain.SectorEnergy, floatPtr(300), 0.6, 0.4),
		record("3", domain.SectorEnergy, floatPtr(1100), 0.8, 0.2),
		record("4", domain.SectorEnergy, nil, 0, 0),
		record("5", domain.SectorIT, floatPtr(5000), 1, 0),
	})
	snap.Disputes["2"] = []domain.Dispute{{DisputeID: "x"}}
	snap.Disputes["5"] = []domain.Dispute{{DisputeID: "y"}}

	b := Sector(snap, domain.SectorEnergy)

	assert.Equal(t, domain.SectorEnergy, b.Sector)
	assert.Equal(t, 4, b.Total)
	assert.InDelta(t, 0.25, b.DisputeRate, 1e-9)
	require.NotNil(t, b.MedianValue)
	require.NotNil(t, b.MeanValue)
	assert.InDelta(t, 300, *b.MedianValue, 1e-6)
	assert.InDelta(t, 500, *b.MeanValue, 1e-6)
	assert.InDelta(t, 0.25, b.PriceOnlyRate, 1e-9)
	assert.InDelta(t, 0.3, b.AvgQualityWeight, 1e-9)
	assert.True(t, b.Sufficient())
}

func TestSectorEvenMedian(t *testing.T) {
	snap := domain.NewSnapshot("t", nil, []*domain.Record{
		record("1", domain.SectorIT, floatPtr(100), 1, 0),
		record("2", domain.SectorIT, floatPtr(200), 1, 0),
	})
	b := Sector(snap, domain.SectorIT)
	require.NotNil(t, b.MedianValue)
	assert.InDelta(t, 150, *b.MedianValue, 1e-6)
	assert.Equal(t, 0.0, b.AvgQualityWeight)
	assert.Equal(t, 1.0, b.PriceOnlyRate)
}

func TestSectorEmpty(t *testing.T) {
	snap := domain.NewSnapshot("t", nil, []*domain.Record{
		record("1", domain.SectorIT, floatPtr(100), 1, 0),
	})

	b := Sector(snap, domain.SectorDefense)
	assert.Equal(t, 0, b.Total)
	assert.Equal(t, 0.0, b.DisputeRate)
	assert.Nil(t, b.MedianValue)
	assert.Nil(t, b.MeanValue)
	assert.False(t, b.Sufficient())
}

func TestSectorWithoutValues(t *testing.T) {
	snap := domain.NewSnapshot("t", nil, []*domain.Record{
		record("1", domain.SectorEducation, nil, 0.5, 0.5),
	})
	b := Sector(snap, domain.SectorEducation)
	assert.Equal(t, 1, b.Total)
	assert.Nil(t, b.MedianValue)
	assert.InDelta(t, 0.5, b.AvgQualityWeight, 1e-9)
}

func TestCompareBuyer(t *testing.T) {
	records := make([]*domain.Record, 0, 10)
	for i := 0; i < 10; i++ {
		pw, qw := 0.7, 0.3
		if i < 5 {
			pw, qw = 1, 0
		}
		records = append(records, record(fmt.Sprint(i), domain.SectorHealthcare, floatPtr(1000), pw, qw))
	}
	snap := domain.NewSnapshot("t", nil, records)
	snap.Disputes["0"] = nil
	bench := Sector(snap, domain.SectorHealthcare)

	profile := &domain.BuyerProfile{
		Name:             "Hospital",
		ProcurementCount: 50,
		SingleBidderRate: 0.4,
		PriceOnlyRate:    0.9,
		DisputeCount:     2,
		RiskFlags:        []string{"high single-bidder rate"},
	}

	c := CompareBuyer(profile, bench)
	require.True(t, c.Sufficient)
	require.Len(t, c.Axes, 4)

	assert.Equal(t, AxisCompetition, c.Axes[0].Name)
	assert.InDelta(t, 60, c.Axes[0].Buyer, 1e-9)
	assert.InDelta(t, 70, c.Axes[0].Sector, 1e-9)

	assert.InDelta(t, 10, c.Axes[1].Buyer, 1e-9)
	assert.InDelta(t, 50, c.Axes[1].Sector, 1e-9)

	// buyer: 2/50 = 0.04 -> 1 - 0.2; sector: 0.1 -> 1 - 0.5
	assert.InDelta(t, 80, c.Axes[2].Buyer, 1e-9)
	assert.InDelta(t, 50, c.Axes[2].Sector, 1e-9)

	assert.InDelta(t, 50, c.Axes[3].Buyer, 1e-9)
	assert.Equal(t, []string{"high single-bidder rate"}, c.RiskFlags)
}

func TestCompareBuyerSmallSector(t *testing.T) {
	snap := domain.NewSnapshot("t", nil, []*domain.Record{
		record("1", domain.SectorIT, floatPtr(100), 1, 0),
	})
	c := CompareBuyer(&domain.BuyerProfile{Name: "Agency"}, Sector(snap, domain.SectorIT))
	assert.False(t, c.Sufficient)
	assert.Empty(t, c.Axes)
	assert.Equal(t, 1, c.Benchmark.Total)
}
