// Package benchmark aggregates sector-wide statistics and compares buyers
// against them.
package benchmark

import (
	"sort"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// MinComparisonSample is the smallest sector size a buyer comparison is drawn against.
const MinComparisonSample = 10

// Sector scans the corpus for one sector. A zero Total means the sample is
// insufficient; that is not an error.
func Sector(snap *domain.Snapshot, sector domain.Sector) *domain.SectorBenchmark {
	b := &domain.SectorBenchmark{Sector: sector}
	feature := domain.SectorFeature(sector)

	var disputed, priceOnly int
	var values, qualityWeights []float64
	snap.Each(func(r *domain.Record) bool {
		f := r.Features
		if f[feature] == 0 {
			return true
		}
		b.Total++
		if snap.IsDisputed(r.ID) {
			disputed++
		}
		if v, ok := f.Value(); ok {
			values = append(values, v)
		}
		pw, qw := f.PriceWeight(), f.QualityWeight()
		if domain.IsPriceOnly(pw, qw) {
			priceOnly++
		}
		if qw > 0 {
			qualityWeights = append(qualityWeights, qw)
		}
		return true
	})

	if b.Total == 0 {
		return b
	}
	b.DisputeRate = float64(disputed) / float64(b.Total)
	b.PriceOnlyRate = float64(priceOnly) / float64(b.Total)
	if len(values) > 0 {
		median, mean := median(values), mean(values)
		b.MedianValue, b.MeanValue = &median, &mean
	}
	if len(qualityWeights) > 0 {
		b.AvgQualityWeight = mean(qualityWeights)
	}
	return b
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
