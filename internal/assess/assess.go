// Package assess hosts the scoring components and combines their results
// into one Assessment per procurement record.
package assess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/procuresight/internal/attribution"
	"github.com/opensource-finance/procuresight/internal/benchmark"
	"github.com/opensource-finance/procuresight/internal/comparable"
	"github.com/opensource-finance/procuresight/internal/domain"
	"github.com/opensource-finance/procuresight/internal/integrity"
	"github.com/opensource-finance/procuresight/internal/quality"
	"github.com/opensource-finance/procuresight/internal/recommend"
	"github.com/opensource-finance/procuresight/internal/rules"
)

// EngineVersion is stamped on every assessment.
const EngineVersion = "procuresight-1.0"

// Component names used in timings, spans and error slots.
const (
	ComponentAttribution = "attribution"
	ComponentCompliance  = "compliance"
	ComponentIntegrity   = "integrity"
	ComponentQuality     = "quality"
	ComponentActions     = "actions"
	ComponentComparables = "comparables"
	ComponentBenchmark   = "benchmark"
)

var (
	// ErrNoSnapshot is returned when no snapshot has been loaded.
	ErrNoSnapshot = errors.New("no snapshot loaded")

	// ErrComponentPanic marks a component that panicked.
	ErrComponentPanic = errors.New("component panicked")
)

var tracer = otel.Tracer("procuresight-assess")

// state is everything derived from one snapshot. It is replaced as a unit.
type state struct {
	snap       *domain.Snapshot
	engine     *rules.Engine
	attributor *attribution.Attributor
}

// Assessor runs the components against the current snapshot. It is safe for
// concurrent use; Load swaps the snapshot without blocking readers.
type Assessor struct {
	catalog *rules.Catalog
	cfg     domain.EngineConfig
	logger  *slog.Logger
	current atomic.Pointer[state]

	assessments metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
}

// New creates an Assessor. Call Load before assessing.
func New(catalog *rules.Catalog, cfg domain.EngineConfig, logger *slog.Logger) (*Assessor, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: nil catalog", rules.ErrInvalidCatalog)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopContributions <= 0 {
		cfg.TopContributions = attribution.DefaultTop
	}
	if cfg.ComparableLimit <= 0 || cfg.ComparableLimit > comparable.MaxMatches {
		cfg.ComparableLimit = comparable.MaxMatches
	}

	a := &Assessor{catalog: catalog, cfg: cfg, logger: logger}

	meter := otel.Meter("procuresight-assess")
	var err error
	if a.assessments, err = meter.Int64Counter("procuresight.assessments.total",
		metric.WithDescription("Assessments produced"),
		metric.WithUnit("{assessment}"),
	); err != nil {
		return nil, err
	}
	if a.failures, err = meter.Int64Counter("procuresight.component.failures",
		metric.WithDescription("Component failures isolated inside an assessment"),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, err
	}
	if a.duration, err = meter.Float64Histogram("procuresight.assessment.duration",
		metric.WithDescription("Assessment duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return a, nil
}

// Load compiles the snapshot's custom rules and model and makes the snapshot
// current. On error the previous snapshot stays in place.
func (a *Assessor) Load(snap *domain.Snapshot) error {
	if snap == nil {
		return ErrNoSnapshot
	}

	engine, err := rules.NewEngine(a.catalog, snap.CustomRules, a.logger)
	if err != nil {
		return fmt.Errorf("compile watch rules: %w", err)
	}

	st := &state{snap: snap, engine: engine}
	if snap.Model != nil {
		if st.attributor, err = attribution.New(snap.Model, a.logger); err != nil {
			return fmt.Errorf("load model: %w", err)
		}
	} else {
		a.logger.Warn("snapshot has no model, attribution disabled", "version", snap.Version)
	}

	prev := a.current.Swap(st)
	attrs := []any{
		"version", snap.Version,
		"records", snap.Len(),
		"buyers", len(snap.Buyers),
		"rules", engine.RulesCount(),
	}
	if prev != nil {
		attrs = append(attrs, "previous_version", prev.snap.Version)
	}
	a.logger.Info("snapshot loaded", attrs...)
	return nil
}

func (a *Assessor) load() (*state, error) {
	st := a.current.Load()
	if st == nil {
		return nil, ErrNoSnapshot
	}
	return st, nil
}

// Snapshot returns the current snapshot, or nil before the first Load.
func (a *Assessor) Snapshot() *domain.Snapshot {
	if st := a.current.Load(); st != nil {
		return st.snap
	}
	return nil
}

// Engine returns the rule engine bound to the current snapshot.
func (a *Assessor) Engine() *rules.Engine {
	if st := a.current.Load(); st != nil {
		return st.engine
	}
	return nil
}

// Version returns the current snapshot version, or "" before the first Load.
func (a *Assessor) Version() string {
	if snap := a.Snapshot(); snap != nil {
		return snap.Version
	}
	return ""
}

// Assess runs every component for one record. A failing component leaves its
// slot empty and records the error in ComponentErrors; the other results are
// still returned. An unknown record id is ErrNoData.
func (a *Assessor) Assess(ctx context.Context, recordID string) (*domain.Assessment, error) {
	start := time.Now()

	st, err := a.load()
	if err != nil {
		return nil, err
	}
	rec := st.snap.Record(recordID)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoData, recordID)
	}

	ctx, span := tracer.Start(ctx, "assess",
		trace.WithAttributes(
			attribute.String("record.id", recordID),
			attribute.String("snapshot.version", st.snap.Version),
		),
	)
	defer span.End()

	as := &domain.Assessment{
		ID:        uuid.New().String(),
		RecordID:  recordID,
		Title:     comparable.CleanTitle(rec.Title, comparable.DefaultTitleLen),
		RiskScore: rec.RiskScore,
		RiskLabel: attribution.RiskLabel(rec.RiskScore),
		Disputes:  st.snap.Disputes[recordID],
		Timestamp: time.Now().UTC(),
		Metadata: domain.AssessmentMetadata{
			TraceID:         span.SpanContext().TraceID().String(),
			ComponentMs:     make(map[string]int64),
			EngineVersion:   EngineVersion,
			SnapshotVersion: st.snap.Version,
		},
	}
	if !span.SpanContext().HasTraceID() {
		as.Metadata.TraceID = uuid.New().String()
	}

	buyer := st.snap.Buyer(rec.BuyerName)
	var lookups *domain.IntegrityLookups
	if l, ok := st.snap.Integrity[recordID]; ok {
		lookups = &l
	}

	var sorted []domain.RiskContribution
	a.run(ctx, as, ComponentAttribution, func() error {
		sorted, err = contributions(ctx, st, rec)
		if err != nil {
			return err
		}
		as.Contributions = attribution.Top(sorted, a.cfg.TopContributions)
		return nil
	})

	a.run(ctx, as, ComponentCompliance, func() error {
		as.Findings = st.engine.Evaluate(ctx, &rules.Input{Record: &rec.Procurement, Buyer: buyer, Title: rec.Title})
		if hasFeatures(rec) == nil {
			as.Checklist = rules.Checklist(rec.Procedure, rec.ContractType, rec.Features)
		}
		as.Metadata.RulesApplied = st.engine.RulesCount()
		return nil
	})

	a.run(ctx, as, ComponentIntegrity, func() error {
		as.IntegrityFlags = integrity.Flags(lookups)
		return nil
	})

	a.run(ctx, as, ComponentQuality, func() error {
		if err := hasFeatures(rec); err != nil {
			return err
		}
		as.Quality = quality.Assess(quality.Input{
			Features:  rec.Features,
			Procedure: rec.Procedure,
			Contract:  rec.ContractType,
			Sector:    rec.Sector,
			Buyer:     buyer,
			Flags:     as.IntegrityFlags,
		})
		return nil
	})

	narrative := st.snap.Narratives[recordID]
	a.run(ctx, as, ComponentActions, func() error {
		if err := hasFeatures(rec); err != nil {
			return err
		}
		as.Actions = recommend.Synthesize(recommend.Input{
			Record:    &rec.Procurement,
			Features:  rec.Features,
			Narrative: narrative,
			Buyer:     buyer,
		})
		return nil
	})

	a.run(ctx, as, ComponentComparables, func() error {
		as.Comparables = comparable.Find(st.snap, comparable.QueryFor(rec, a.cfg.ComparableLimit))
		return nil
	})

	a.run(ctx, as, ComponentBenchmark, func() error {
		if rec.Sector == "" {
			return nil
		}
		if b := benchmark.Sector(st.snap, rec.Sector); b.Sufficient() {
			as.Benchmark = b
		}
		return nil
	})

	as.Summary = Summary(as.RiskScore, st.snap.IsDisputed(recordID), attribution.TopDrivers(sorted), narrative)

	elapsed := time.Since(start)
	as.Metadata.TotalMs = elapsed.Milliseconds()

	outcome := "complete"
	if len(as.ComponentErrors) > 0 {
		outcome = "partial"
		span.SetStatus(codes.Error, "component failures")
	}
	recAttrs := metric.WithAttributes(attribute.String("outcome", outcome))
	a.assessments.Add(ctx, 1, recAttrs)
	a.duration.Record(ctx, elapsed.Seconds(), recAttrs)

	return as, nil
}

// run executes one component inside its own span, recovering panics into the
// assessment's error slot for that component.
func (a *Assessor) run(ctx context.Context, as *domain.Assessment, name string, fn func() error) {
	start := time.Now()
	_, span := tracer.Start(ctx, "assess."+name)
	defer span.End()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("component panic",
					"component", name,
					"record_id", as.RecordID,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = fmt.Errorf("%w: %v", ErrComponentPanic, r)
			}
		}()
		return fn()
	}()

	as.Metadata.ComponentMs[name] = time.Since(start).Milliseconds()
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	a.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("component", name)))
	if as.ComponentErrors == nil {
		as.ComponentErrors = make(map[string]string)
	}
	as.ComponentErrors[name] = err.Error()
	if !errors.Is(err, domain.ErrNoData) {
		a.logger.Warn("component failed",
			"component", name,
			"record_id", as.RecordID,
			"error", err,
		)
	}
}

func contributions(ctx context.Context, st *state, rec *domain.Record) ([]domain.RiskContribution, error) {
	if st.attributor == nil {
		return nil, fmt.Errorf("%w: model not loaded", domain.ErrNoData)
	}
	if err := hasFeatures(rec); err != nil {
		return nil, err
	}
	return st.attributor.Contributions(ctx, rec.ID, rec.Features), nil
}

// hasFeatures is ErrNoData for a record whose feature vector was never stored.
func hasFeatures(rec *domain.Record) error {
	if len(rec.Features) == 0 {
		return fmt.Errorf("%w: %s has no feature vector", domain.ErrNoData, rec.ID)
	}
	return nil
}
