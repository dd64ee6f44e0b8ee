// Package domain defines the core interfaces and types for ProcureSight.
package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknownCategory is returned when a categorical field is outside its closed set.
var ErrUnknownCategory = errors.New("unknown category")

// Sector is the closed set of procurement sectors.
type Sector string

const (
	SectorIT                   Sector = "IT"
	SectorConstruction         Sector = "construction"
	SectorTransport            Sector = "transport"
	SectorEnergy               Sector = "energy"
	SectorHealthcare           Sector = "healthcare"
	SectorConsulting           Sector = "consulting"
	SectorProfessionalServices Sector = "professional_services"
	SectorMaintenance          Sector = "maintenance"
	SectorEducation            Sector = "education"
	SectorEnvironment          Sector = "environment"
	SectorDefense              Sector = "defense"
	SectorOther                Sector = "other"
)

// Sectors lists every sector in display order.
var Sectors = []Sector{
	SectorIT, SectorConstruction, SectorTransport, SectorEnergy,
	SectorHealthcare, SectorConsulting, SectorProfessionalServices,
	SectorMaintenance, SectorEducation, SectorEnvironment, SectorDefense,
	SectorOther,
}

// Procedure is the closed set of procurement procedure types.
type Procedure string

const (
	ProcedureOpen               Procedure = "open"
	ProcedureRestricted         Procedure = "restricted"
	ProcedureNegotiatedWithCall Procedure = "neg-w-call"
	ProcedureNegotiatedWithout  Procedure = "neg-wo-call"
	ProcedureSingleSource       Procedure = "oth-single"
	ProcedureSimplified         Procedure = "simplified"
	ProcedureConcession         Procedure = "concession"
)

// Procedures lists every procedure type.
var Procedures = []Procedure{
	ProcedureOpen, ProcedureRestricted, ProcedureNegotiatedWithCall,
	ProcedureNegotiatedWithout, ProcedureSingleSource, ProcedureSimplified,
	ProcedureConcession,
}

// ContractType is the closed set of contract types.
type ContractType string

const (
	ContractServices ContractType = "services"
	ContractSupplies ContractType = "supplies"
	ContractWorks    ContractType = "works"
)

// ContractTypes lists every contract type.
var ContractTypes = []ContractType{ContractServices, ContractSupplies, ContractWorks}

// ParseSector validates a sector string. The empty string parses to "" with no error.
func ParseSector(s string) (Sector, error) {
	if s == "" {
		return "", nil
	}
	for _, v := range Sectors {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: sector %q", ErrUnknownCategory, s)
}

// ParseProcedure validates a procedure string. The empty string parses to "" with no error.
func ParseProcedure(s string) (Procedure, error) {
	if s == "" {
		return "", nil
	}
	for _, v := range Procedures {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: procedure %q", ErrUnknownCategory, s)
}

// ParseContractType validates a contract type string. The empty string parses to "" with no error.
func ParseContractType(s string) (ContractType, error) {
	if s == "" {
		return "", nil
	}
	for _, v := range ContractTypes {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: contract type %q", ErrUnknownCategory, s)
}

// IsNonCompetitive reports whether the procedure awards without a competitive call.
func (p Procedure) IsNonCompetitive() bool {
	return p == ProcedureNegotiatedWithout || p == ProcedureSingleSource
}

// IsCompetitive reports whether the procedure publishes a call for competition
// with award criteria.
func (p Procedure) IsCompetitive() bool {
	return p == ProcedureOpen || p == ProcedureRestricted || p == ProcedureNegotiatedWithCall
}

// Label returns the English display label of a procedure.
func (p Procedure) Label() string {
	switch p {
	case ProcedureOpen:
		return "Open"
	case ProcedureRestricted:
		return "Restricted"
	case ProcedureNegotiatedWithCall:
		return "Negotiated (w/ call)"
	case ProcedureNegotiatedWithout:
		return "Negotiated (w/o call)"
	case ProcedureSingleSource:
		return "Single source"
	case ProcedureSimplified:
		return "Simplified"
	case ProcedureConcession:
		return "Concession"
	}
	return string(p)
}

// Procurement is one materialized procurement record. It is never mutated by the engine.
type Procurement struct {
	ID           string       `json:"id"`
	BuyerName    string       `json:"buyerName"`
	Sector       Sector       `json:"sector"`
	Procedure    Procedure    `json:"procedure"`
	ContractType ContractType `json:"contractType"`

	// EstimatedValue is nil when the buyer did not publish a value.
	EstimatedValue *float64 `json:"estimatedValue,omitempty"`

	PriceWeight   float64 `json:"priceWeight"`
	QualityWeight float64 `json:"qualityWeight"`

	TenderCount  *int     `json:"tenderCount,omitempty"`
	DeadlineDays *float64 `json:"deadlineDays,omitempty"`

	EUFunded      bool `json:"euFunded"`
	Framework     bool `json:"framework"`
	HasGreen      bool `json:"hasGreen"`
	HasSocial     bool `json:"hasSocial"`
	HasInnovation bool `json:"hasInnovation"`

	// RiskScore is the frozen model's probability for this record.
	RiskScore float64 `json:"riskScore"`
}

// Value returns the estimated value and whether it is known.
func (p *Procurement) Value() (float64, bool) {
	if p.EstimatedValue == nil {
		return 0, false
	}
	return *p.EstimatedValue, true
}

// ValueAbove reports whether the value is known and strictly greater than limit.
func (p *Procurement) ValueAbove(limit float64) bool {
	v, ok := p.Value()
	return ok && v > limit
}

// HasBuyer reports whether the contracting authority is identified.
func (p *Procurement) HasBuyer() bool {
	return strings.TrimSpace(p.BuyerName) != ""
}

// IsPriceOnly reports whether award criteria give effectively zero weight to quality.
// Weights need not be normalized.
func IsPriceOnly(priceWeight, qualityWeight float64) bool {
	if qualityWeight == 0 && priceWeight > 0 {
		return true
	}
	total := priceWeight + qualityWeight
	return total > 0 && qualityWeight/total < 0.01
}

// QualityRatio returns the quality share of the total weight, or 0 when no weights are set.
func QualityRatio(priceWeight, qualityWeight float64) float64 {
	total := priceWeight + qualityWeight
	if total <= 0 {
		return 0
	}
	return qualityWeight / total
}

// FormatEUR renders an amount as a compact euro string such as "€6.0M" or "€250K".
func FormatEUR(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return "-"
	}
	switch x := *v; {
	case x >= 1_000_000:
		return "€" + groupThousands(x/1_000_000, 1) + "M"
	case x >= 1_000:
		return "€" + groupThousands(x/1_000, 0) + "K"
	default:
		return "€" + groupThousands(x, 0)
	}
}

func groupThousands(x float64, decimals int) string {
	s := strconv.FormatFloat(x, 'f', decimals, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if neg {
		out = "-" + out
	}
	if frac != "" {
		out += "." + frac
	}
	return out
}

// Percent renders a rate in [0,1] as a whole percentage.
func Percent(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 0, 64) + "%"
}
