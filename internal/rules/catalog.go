// Package rules provides the compliance rule engine: the fixed built-in
// catalog, the brand-name scanner and CEL-based custom watch rules.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// Built-in rule ids, in evaluation order.
const (
	RuleNonCompetitiveHighValue = "non_competitive_high_value"
	RuleSingleSourceWorks       = "single_source_works_threshold"
	RulePriceOnlyHighServices   = "price_only_high_services"
	RuleNoCriteria              = "no_criteria"
	RuleBrandName               = "brand_name_restriction"
	RuleLowCompetitionBuyer     = "low_competition_buyer"
	RulePriceOnlyDisputedBuyer  = "price_only_disputed_buyer"
	RuleMissingBuyer            = "missing_buyer"
)

// ErrInvalidCatalog is returned when the catalog cannot be loaded.
var ErrInvalidCatalog = errors.New("invalid rule catalog")

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the loaded rule metadata and compiled brand patterns.
type Catalog struct {
	rules  map[string]domain.ComplianceRule
	brands []*regexp.Regexp
}

type catalogFile struct {
	Rules []struct {
		ID          string `yaml:"id"`
		Title       string `yaml:"title"`
		Severity    string `yaml:"severity"`
		Explanation string `yaml:"explanation"`
	} `yaml:"rules"`
	BrandPatterns []string `yaml:"brandPatterns"`
}

// DefaultCatalog loads the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultCatalog)
}

// LoadCatalog parses a YAML catalog. Every built-in rule must be described,
// severities must be known and every brand pattern must compile.
func LoadCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	c := &Catalog{rules: make(map[string]domain.ComplianceRule, len(f.Rules))}
	for _, r := range f.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: rule without id", ErrInvalidCatalog)
		}
		if _, dup := c.rules[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule %s", ErrInvalidCatalog, r.ID)
		}
		sev, err := domain.ParseSeverity(r.Severity)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s: %v", ErrInvalidCatalog, r.ID, err)
		}
		c.rules[r.ID] = domain.ComplianceRule{
			ID:          r.ID,
			Title:       r.Title,
			Explanation: r.Explanation,
			Severity:    sev,
		}
	}

	for _, b := range builtins {
		if _, ok := c.rules[b.id]; !ok {
			return nil, fmt.Errorf("%w: missing rule %s", ErrInvalidCatalog, b.id)
		}
	}

	for _, p := range f.BrandPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("%w: brand pattern %q: %v", ErrInvalidCatalog, p, err)
		}
		c.brands = append(c.brands, re)
	}

	return c, nil
}

// Rule returns catalog metadata for a rule id.
func (c *Catalog) Rule(id string) (domain.ComplianceRule, bool) {
	r, ok := c.rules[id]
	return r, ok
}

// Rules returns the built-in rules in evaluation order.
func (c *Catalog) Rules() []domain.ComplianceRule {
	out := make([]domain.ComplianceRule, 0, len(builtins))
	for _, b := range builtins {
		out = append(out, c.rules[b.id])
	}
	return out
}

// MatchBrand returns the text matched by the first brand pattern that hits.
func (c *Catalog) MatchBrand(title string) (string, bool) {
	if title == "" {
		return "", false
	}
	for _, re := range c.brands {
		if m := re.FindString(title); m != "" {
			return m, true
		}
	}
	return "", false
}
