package benchmark

import (
	"github.com/opensource-finance/procuresight/internal/domain"
)

// Comparison axes, each scored 0-100 where higher is better.
const (
	AxisCompetition = "Competition"
	AxisQuality     = "Quality criteria usage"
	AxisDisputes    = "Low disputes"
	AxisExperience  = "Experience"
)

// Reference values for axes the sector aggregate does not measure.
const (
	sectorCompetition = 70.0
	sectorExperience  = 50.0
)

// Axis is one buyer-versus-sector metric.
type Axis struct {
	Name   string  `json:"name"`
	Buyer  float64 `json:"buyer"`
	Sector float64 `json:"sector"`
}

// Comparison places a buyer against its sector.
type Comparison struct {
	Buyer      string                  `json:"buyer"`
	Sector     domain.Sector           `json:"sector"`
	Sufficient bool                    `json:"sufficient"`
	Benchmark  *domain.SectorBenchmark `json:"benchmark"`
	Axes       []Axis                  `json:"axes,omitempty"`
	RiskFlags  []string                `json:"riskFlags,omitempty"`
}

// CompareBuyer scores a buyer profile against a sector benchmark. Axes are
// only filled when the sector has at least MinComparisonSample records.
func CompareBuyer(p *domain.BuyerProfile, b *domain.SectorBenchmark) *Comparison {
	c := &Comparison{Buyer: p.Name, Sector: b.Sector, Benchmark: b, RiskFlags: p.RiskFlags}
	if b.Total < MinComparisonSample {
		return c
	}
	c.Sufficient = true

	buyerDisputeRate := min(float64(p.DisputeCount)/float64(max(p.ProcurementCount, 1)), 0.2)
	c.Axes = []Axis{
		{Name: AxisCompetition, Buyer: (1 - p.SingleBidderRate) * 100, Sector: sectorCompetition},
		{Name: AxisQuality, Buyer: (1 - p.PriceOnlyRate) * 100, Sector: (1 - b.PriceOnlyRate) * 100},
		{Name: AxisDisputes, Buyer: lowDisputeScore(buyerDisputeRate), Sector: lowDisputeScore(b.DisputeRate)},
		{Name: AxisExperience, Buyer: min(float64(p.ProcurementCount)/100, 1) * 100, Sector: sectorExperience},
	}
	return c
}

func lowDisputeScore(rate float64) float64 {
	return (1 - min(rate*5, 1)) * 100
}
