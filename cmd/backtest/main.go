// Backtest tool for measuring ProcureSight against the dispute ledger.
//
// Usage:
//
//	go run ./cmd/backtest -fixture /path/to/fixture.json
//	go run ./cmd/backtest -seed 500 -by label
//
// This tool:
//  1. Loads a fixture file, or generates the demo corpus
//  2. Assesses every record in-process with a pool of workers
//  3. Compares the predicted flag with whether the record was disputed
//  4. Prints precision, recall, F1-score and the confusion matrix
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/procuresight/internal/assess"
	"github.com/opensource-finance/procuresight/internal/attribution"
	"github.com/opensource-finance/procuresight/internal/domain"
	"github.com/opensource-finance/procuresight/internal/repository"
	"github.com/opensource-finance/procuresight/internal/rules"
	"github.com/opensource-finance/procuresight/internal/sample"
)

// Predictor decides whether an assessment counts as a dispute warning.
type Predictor func(*domain.Assessment) bool

var predictors = map[string]Predictor{
	// A high severity compliance finding.
	"findings": func(a *domain.Assessment) bool { return a.HasHighSeverity() },
	// The attribution label is High or Elevated.
	"label": func(a *domain.Assessment) bool {
		return a.RiskLabel == attribution.LabelHigh || a.RiskLabel == attribution.LabelElevated
	},
	"either": func(a *domain.Assessment) bool {
		return a.HasHighSeverity() || a.RiskLabel == attribution.LabelHigh || a.RiskLabel == attribution.LabelElevated
	},
}

// Metrics tracks backtest results
type Metrics struct {
	TruePositives  int64 // Disputed and flagged
	FalsePositives int64 // Flagged, never disputed
	TrueNegatives  int64 // Neither flagged nor disputed
	FalseNegatives int64 // Disputed but not flagged

	TotalProcessed int64
	TotalDisputed  int64
	TotalClean     int64
	TotalErrors    int64

	ProcessingTimeUs int64
}

func main() {
	fixturePath := flag.String("fixture", "", "Path to a fixture JSON file")
	seedSize := flag.Int("seed", sample.DefaultSize, "Size of the generated corpus when no fixture is given")
	by := flag.String("by", "findings", "Prediction rule: findings, label or either")
	workers := flag.Int("workers", 8, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each record result")
	flag.Parse()

	predict, ok := predictors[*by]
	if !ok {
		fmt.Printf("Unknown prediction rule %q\n\nFlags:\n", *by)
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          PROCURESIGHT BACKTEST - Dispute Ledger               ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	var fixture *domain.Fixture
	if *fixturePath != "" {
		f, err := repository.ReadFixtureFile(*fixturePath)
		if err != nil {
			fmt.Printf("ERROR: Failed to read fixture: %v\n", err)
			os.Exit(1)
		}
		fixture = f
		fmt.Printf("\nFixture:     %s\n", *fixturePath)
	} else {
		fixture = sample.Fixture(*seedSize)
		fmt.Printf("\nFixture:     generated (%d records)\n", *seedSize)
	}
	fmt.Printf("Version:     %s\n", fixture.Version)
	fmt.Printf("Predict by:  %s\n", *by)
	fmt.Printf("Workers:     %d\n", *workers)

	snap := fixture.Snapshot()
	assessor, err := newAssessor(snap)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d records, %d disputed\n", snap.Len(), len(snap.Disputes))

	fmt.Printf("\nRunning backtest with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBacktest(context.Background(), assessor, snap, predict, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func newAssessor(snap *domain.Snapshot) (*assess.Assessor, error) {
	catalog, err := rules.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	a, err := assess.New(catalog, domain.DefaultConfig().Engine, nil)
	if err != nil {
		return nil, err
	}
	if err := a.Load(snap); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return a, nil
}

func runBacktest(ctx context.Context, assessor *assess.Assessor, snap *domain.Snapshot, predict Predictor, numWorkers int, verbose bool) *Metrics {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	metrics := &Metrics{}

	work := make(chan *domain.Record, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				start := time.Now()
				result, err := assessor.Assess(ctx, rec.ID)
				atomic.AddInt64(&metrics.ProcessingTimeUs, time.Since(start).Microseconds())
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", rec.ID, err)
					}
					continue
				}

				actual := snap.IsDisputed(rec.ID)
				if actual {
					atomic.AddInt64(&metrics.TotalDisputed, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}

				predicted := predict(result)
				switch {
				case predicted && actual:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !actual:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !actual:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s %-10s | Sector: %-12s | Risk: %6.2f%% %-8s | Findings: %d | Disputed: %v\n",
						status,
						rec.ID,
						rec.Sector,
						rec.RiskScore*100,
						result.RiskLabel,
						len(result.Findings),
						actual,
					)
				}
			}
		}()
	}

	snap.Each(func(r *domain.Record) bool {
		work <- r
		return true
	})
	close(work)

	wg.Wait()
	return metrics
}

// Precision is the share of flagged records that were disputed.
func (m *Metrics) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

// Recall is the share of disputed records that were flagged.
func (m *Metrics) Recall() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
}

func (m *Metrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (m *Metrics) Accuracy() float64 {
	return ratio(m.TruePositives+m.TrueNegatives, m.TruePositives+m.TrueNegatives+m.FalsePositives+m.FalseNegatives)
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BACKTEST RESULTS                         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Disputed:         %d\n", m.TotalDisputed)
	fmt.Printf("   Not Disputed:     %d\n", m.TotalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    FLAG        PASS")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  D  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          ND  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flags, how many were disputed)\n", m.Precision())
	fmt.Printf("   Recall:     %.4f  (of disputes, how many were flagged)\n", m.Recall())
	fmt.Printf("   F1-Score:   %.4f\n", m.F1())
	fmt.Printf("   Accuracy:   %.4f\n", m.Accuracy())

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeUs) / float64(m.TotalProcessed) / 1000
		fmt.Printf("   Avg Latency:      %.3f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f records/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
