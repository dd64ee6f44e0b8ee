package assess

import (
	"context"
	"fmt"

	"github.com/opensource-finance/procuresight/internal/attribution"
	"github.com/opensource-finance/procuresight/internal/benchmark"
	"github.com/opensource-finance/procuresight/internal/comparable"
	"github.com/opensource-finance/procuresight/internal/domain"
	"github.com/opensource-finance/procuresight/internal/integrity"
	"github.com/opensource-finance/procuresight/internal/quality"
	"github.com/opensource-finance/procuresight/internal/recommend"
	"github.com/opensource-finance/procuresight/internal/rules"
)

// The single-component queries below answer the narrower API endpoints
// without running the full assessment.

func (a *Assessor) record(recordID string) (*state, *domain.Record, error) {
	st, err := a.load()
	if err != nil {
		return nil, nil, err
	}
	rec := st.snap.Record(recordID)
	if rec == nil {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrNoData, recordID)
	}
	return st, rec, nil
}

// Contributions returns the top n feature contributions for a record,
// ascending by signed contribution. n <= 0 uses the configured default.
func (a *Assessor) Contributions(ctx context.Context, recordID string, n int) ([]domain.RiskContribution, error) {
	st, rec, err := a.record(recordID)
	if err != nil {
		return nil, err
	}
	sorted, err := contributions(ctx, st, rec)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = a.cfg.TopContributions
	}
	return attribution.Top(sorted, n), nil
}

// Findings evaluates the compliance rules for a record.
func (a *Assessor) Findings(ctx context.Context, recordID string) ([]domain.ComplianceFinding, error) {
	st, rec, err := a.record(recordID)
	if err != nil {
		return nil, err
	}
	return st.engine.Evaluate(ctx, &rules.Input{
		Record: &rec.Procurement,
		Buyer:  st.snap.Buyer(rec.BuyerName),
		Title:  rec.Title,
	}), nil
}

// Quality scores the rubric for a record.
func (a *Assessor) Quality(recordID string) (*domain.QualityAssessment, error) {
	st, rec, err := a.record(recordID)
	if err != nil {
		return nil, err
	}
	if err := hasFeatures(rec); err != nil {
		return nil, err
	}
	var flags []domain.IntegrityFlag
	if l, ok := st.snap.Integrity[recordID]; ok {
		flags = integrity.Flags(&l)
	}
	return quality.Assess(quality.Input{
		Features:  rec.Features,
		Procedure: rec.Procedure,
		Contract:  rec.ContractType,
		Sector:    rec.Sector,
		Buyer:     st.snap.Buyer(rec.BuyerName),
		Flags:     flags,
	}), nil
}

// Actions synthesizes the recommended actions for a record.
func (a *Assessor) Actions(recordID string) ([]domain.ActionItem, error) {
	st, rec, err := a.record(recordID)
	if err != nil {
		return nil, err
	}
	if err := hasFeatures(rec); err != nil {
		return nil, err
	}
	return recommend.Synthesize(recommend.Input{
		Record:    &rec.Procurement,
		Features:  rec.Features,
		Narrative: st.snap.Narratives[recordID],
		Buyer:     st.snap.Buyer(rec.BuyerName),
	}), nil
}

// Comparables finds records similar to an existing one.
func (a *Assessor) Comparables(recordID string) ([]domain.ComparableMatch, error) {
	st, rec, err := a.record(recordID)
	if err != nil {
		return nil, err
	}
	return comparable.Find(st.snap, comparable.QueryFor(rec, a.cfg.ComparableLimit)), nil
}

// FindComparables runs an ad-hoc comparable query against the corpus.
func (a *Assessor) FindComparables(q comparable.Query) ([]domain.ComparableMatch, error) {
	st, err := a.load()
	if err != nil {
		return nil, err
	}
	return comparable.Find(st.snap, q), nil
}

// SectorBenchmark aggregates one sector. An unknown sector name is
// domain.ErrUnknownCategory; an empty sample is returned with Total 0.
func (a *Assessor) SectorBenchmark(sector string) (*domain.SectorBenchmark, error) {
	st, err := a.load()
	if err != nil {
		return nil, err
	}
	return sectorBenchmark(st, sector)
}

// BuyerBenchmark compares a buyer with a sector. An unknown buyer is ErrNoData.
func (a *Assessor) BuyerBenchmark(buyer, sector string) (*benchmark.Comparison, error) {
	st, err := a.load()
	if err != nil {
		return nil, err
	}
	b, err := sectorBenchmark(st, sector)
	if err != nil {
		return nil, err
	}
	p := st.snap.Buyer(buyer)
	if p == nil {
		return nil, fmt.Errorf("%w: buyer %s", domain.ErrNoData, buyer)
	}
	return benchmark.CompareBuyer(p, b), nil
}

func sectorBenchmark(st *state, sector string) (*domain.SectorBenchmark, error) {
	s, err := domain.ParseSector(sector)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty sector", domain.ErrUnknownCategory)
	}
	return benchmark.Sector(st.snap, s), nil
}
