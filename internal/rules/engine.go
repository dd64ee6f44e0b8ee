package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// Engine evaluates the built-in catalog followed by custom watch rules.
// It is immutable once built and safe for concurrent use.
type Engine struct {
	catalog *Catalog
	env     *cel.Env
	custom  []*CompiledRule
	logger  *slog.Logger
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  domain.CustomRule
	Program cel.Program
}

// NewEnv returns the CEL environment custom rules are compiled against.
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("record_id", cel.StringType),
		cel.Variable("buyer", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("sector", cel.StringType),
		cel.Variable("procedure", cel.StringType),
		cel.Variable("contract_type", cel.StringType),
		cel.Variable("value", cel.DoubleType),
		cel.Variable("value_known", cel.BoolType),
		cel.Variable("price_weight", cel.DoubleType),
		cel.Variable("quality_weight", cel.DoubleType),
		cel.Variable("price_only", cel.BoolType),
		cel.Variable("tenders", cel.IntType),
		cel.Variable("deadline_days", cel.DoubleType),
		cel.Variable("eu_funded", cel.BoolType),
		cel.Variable("framework", cel.BoolType),
		cel.Variable("risk_score", cel.DoubleType),
		// Buyer profile; zero values when the buyer has no profile
		cel.Variable("has_profile", cel.BoolType),
		cel.Variable("buyer_procurements", cel.IntType),
		cel.Variable("buyer_single_bidder_rate", cel.DoubleType),
		cel.Variable("buyer_price_only_rate", cel.DoubleType),
		cel.Variable("buyer_disputes", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewEngine compiles the enabled custom rules. Compile errors are fatal.
func NewEngine(catalog *Catalog, custom []domain.CustomRule, logger *slog.Logger) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrInvalidCatalog)
	}
	if logger == nil {
		logger = slog.Default()
	}
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}

	e := &Engine{catalog: catalog, env: env, logger: logger}
	seen := make(map[string]struct{})
	for _, cfg := range custom {
		if !cfg.Enabled {
			continue
		}
		if _, builtin := catalog.Rule(cfg.ID); builtin {
			return nil, fmt.Errorf("custom rule %s shadows a built-in rule", cfg.ID)
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate custom rule %s", cfg.ID)
		}
		seen[cfg.ID] = struct{}{}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return nil, err
		}
		e.custom = append(e.custom, compiled)
	}
	sort.Slice(e.custom, func(i, j int) bool {
		return e.custom[i].Config.ID < e.custom[j].Config.ID
	})
	return e, nil
}

// ValidateRule compiles a custom rule without loading it.
func (e *Engine) ValidateRule(cfg domain.CustomRule) error {
	_, err := e.compileRule(cfg)
	return err
}

// Catalog returns the built-in catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// CustomRules returns the loaded custom rules in evaluation order.
func (e *Engine) CustomRules() []domain.CustomRule {
	out := make([]domain.CustomRule, len(e.custom))
	for i, c := range e.custom {
		out[i] = c.Config
	}
	return out
}

// RulesCount returns the number of rules evaluated per record.
func (e *Engine) RulesCount() int {
	return len(builtins) + len(e.custom)
}

// Evaluate runs every rule against one record. The result order is the
// built-in order followed by custom rules by id; no rule suppresses another.
func (e *Engine) Evaluate(ctx context.Context, in *Input) []domain.ComplianceFinding {
	var findings []domain.ComplianceFinding
	for _, b := range builtins {
		detail, ok := b.check(e.catalog, in)
		if !ok {
			continue
		}
		meta, _ := e.catalog.Rule(b.id)
		findings = append(findings, domain.ComplianceFinding{
			RecordID: in.Record.ID,
			RuleID:   b.id,
			Title:    meta.Title,
			Severity: meta.Severity,
			Detail:   detail,
		})
	}

	if len(e.custom) == 0 {
		return findings
	}

	activation := newActivation(in)
	for _, rule := range e.custom {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			e.logger.WarnContext(ctx, "custom rule evaluation failed",
				"rule_id", rule.Config.ID,
				"record_id", in.Record.ID,
				"error", err,
			)
			continue
		}
		if toScore(out) <= 0 {
			continue
		}
		detail := rule.Config.Description
		if detail == "" {
			detail = fmt.Sprintf("Watch rule %s matched.", rule.Config.ID)
		}
		findings = append(findings, domain.ComplianceFinding{
			RecordID: in.Record.ID,
			RuleID:   rule.Config.ID,
			Title:    rule.Config.Title,
			Severity: rule.Config.Severity,
			Detail:   detail,
		})
	}
	return findings
}

func newActivation(in *Input) map[string]any {
	r := in.Record
	value, known := r.Value()
	tenders := int64(-1)
	if r.TenderCount != nil {
		tenders = int64(*r.TenderCount)
	}
	deadline := 0.0
	if r.DeadlineDays != nil {
		deadline = *r.DeadlineDays
	}

	activation := map[string]any{
		"record_id":                r.ID,
		"buyer":                    r.BuyerName,
		"title":                    in.Title,
		"sector":                   string(r.Sector),
		"procedure":                string(r.Procedure),
		"contract_type":            string(r.ContractType),
		"value":                    value,
		"value_known":              known,
		"price_weight":             r.PriceWeight,
		"quality_weight":           r.QualityWeight,
		"price_only":               domain.IsPriceOnly(r.PriceWeight, r.QualityWeight),
		"tenders":                  tenders,
		"deadline_days":            deadline,
		"eu_funded":                r.EUFunded,
		"framework":                r.Framework,
		"risk_score":               r.RiskScore,
		"has_profile":              in.Buyer != nil,
		"buyer_procurements":       int64(0),
		"buyer_single_bidder_rate": 0.0,
		"buyer_price_only_rate":    0.0,
		"buyer_disputes":           int64(0),
	}
	if b := in.Buyer; b != nil {
		activation["buyer_procurements"] = int64(b.ProcurementCount)
		activation["buyer_single_bidder_rate"] = b.SingleBidderRate
		activation["buyer_price_only_rate"] = b.PriceOnlyRate
		activation["buyer_disputes"] = int64(b.DisputeCount)
	}
	return activation
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

func (e *Engine) compileRule(cfg domain.CustomRule) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("custom rule without id")
	}
	if _, err := domain.ParseSeverity(string(cfg.Severity)); err != nil {
		return nil, fmt.Errorf("rule %s: %w", cfg.ID, err)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
