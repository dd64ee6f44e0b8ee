// Package comparable retrieves historically similar procurements.
package comparable

import (
	"sort"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// MaxMatches caps every result list.
const MaxMatches = 20

// titleLen is the longest title snippet carried in a match.
const titleLen = 80

// Query describes the target. Empty Sector or Procedure disables that filter;
// a nil or non-positive Value disables the value band.
type Query struct {
	Sector    domain.Sector
	Procedure domain.Procedure
	Value     *float64
	ExcludeID string
	Limit     int
}

// QueryFor builds the query for an existing record.
func QueryFor(r *domain.Record, limit int) Query {
	return Query{
		Sector:    r.Sector,
		Procedure: r.Procedure,
		Value:     r.EstimatedValue,
		ExcludeID: r.ID,
		Limit:     limit,
	}
}

// Find scans the corpus and returns matches, disputed records first, then by
// descending risk score.
func Find(snap *domain.Snapshot, q Query) []domain.ComparableMatch {
	limit := q.Limit
	if limit <= 0 || limit > MaxMatches {
		limit = MaxMatches
	}

	var lo, hi float64
	band := q.Value != nil && *q.Value > 0
	if band {
		lo, hi = *q.Value/3, *q.Value*3
	}

	matches := make([]domain.ComparableMatch, 0)
	snap.Each(func(r *domain.Record) bool {
		if r.ID == q.ExcludeID {
			return true
		}
		f := r.Features
		if q.Sector != "" && f[domain.SectorFeature(q.Sector)] != 1 {
			return true
		}
		if q.Procedure != "" && f[domain.ProcedureFeature(q.Procedure)] != 1 {
			return true
		}

		value, known := f.Value()
		if band && known && (value < lo || value > hi) {
			return true
		}

		m := domain.ComparableMatch{
			RecordID:      r.ID,
			Title:         truncate(r.Title, titleLen),
			Buyer:         r.BuyerName,
			Disputed:      snap.IsDisputed(r.ID),
			RiskScore:     r.RiskScore,
			PriceWeight:   f.PriceWeight(),
			QualityWeight: f.QualityWeight(),
		}
		if known {
			m.Value = &value
		}
		matches = append(matches, m)
		return true
	})

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Disputed != b.Disputed {
			return a.Disputed
		}
		if a.RiskScore != b.RiskScore {
			return a.RiskScore > b.RiskScore
		}
		return a.RecordID < b.RecordID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
