package domain

import (
	"math"
)

// Canonical feature names produced by the feature encoder.
const (
	FeaturePriceWeight     = "price_weight"
	FeatureQualityWeight   = "quality_weight"
	FeatureLogValue        = "log_estimated_value"
	FeatureValueMissing    = "value_missing"
	FeatureLogDeadline     = "log_deadline_days"
	FeatureDeadlineMissing = "deadline_missing"
	FeatureTendersReceived = "tenders_received"
	FeatureTendersMissing  = "tenders_missing"
	FeatureEUFunded        = "is_eu_funded"
	FeatureFramework       = "is_framework"
	FeatureHasGreen        = "has_green"
	FeatureHasSocial       = "has_social"
	FeatureHasInnovation   = "has_innovation"
	featureSectorPrefix    = "sector_"
	featureProcedurePrefix = "proc_"
	featureContractPrefix  = "ct_"
	unknownTendersSentinel = -1
)

// FeatureVector maps feature names to numeric values for one record.
type FeatureVector map[string]float64

// SectorFeature returns the indicator feature name for a sector.
func SectorFeature(s Sector) string { return featureSectorPrefix + string(s) }

// ProcedureFeature returns the indicator feature name for a procedure.
func ProcedureFeature(p Procedure) string { return featureProcedurePrefix + string(p) }

// ContractFeature returns the indicator feature name for a contract type.
func ContractFeature(c ContractType) string { return featureContractPrefix + string(c) }

func (f FeatureVector) flag(name string) bool { return f[name] != 0 }

// PriceWeight returns the price criterion weight.
func (f FeatureVector) PriceWeight() float64 { return f[FeaturePriceWeight] }

// QualityWeight returns the quality criterion weight.
func (f FeatureVector) QualityWeight() float64 { return f[FeatureQualityWeight] }

// InSector reports whether the sector indicator is set.
func (f FeatureVector) InSector(s Sector) bool { return f[SectorFeature(s)] == 1 }

// HasProcedure reports whether the procedure indicator is set.
func (f FeatureVector) HasProcedure(p Procedure) bool { return f[ProcedureFeature(p)] == 1 }

// Value decodes the estimated value. A vector without a value_missing entry
// is treated as missing.
func (f FeatureVector) Value() (float64, bool) {
	missing, ok := f[FeatureValueMissing]
	if !ok || missing != 0 {
		return 0, false
	}
	return expRounded(f[FeatureLogValue]), true
}

// DeadlineDays decodes the submission deadline length. As with Value, only
// the deadline_missing flag decides whether the deadline is known.
func (f FeatureVector) DeadlineDays() (float64, bool) {
	missing, ok := f[FeatureDeadlineMissing]
	if !ok || missing != 0 {
		return 0, false
	}
	return expRounded(f[FeatureLogDeadline]), true
}

// Tenders decodes the number of tenders received.
func (f FeatureVector) Tenders() (int, bool) {
	v, ok := f[FeatureTendersReceived]
	if !ok || f.flag(FeatureTendersMissing) || v < 0 {
		return unknownTendersSentinel, false
	}
	return int(v), true
}

// HasGreen reports whether green criteria are present.
func (f FeatureVector) HasGreen() bool { return f.flag(FeatureHasGreen) }

// HasSocial reports whether social criteria are present.
func (f FeatureVector) HasSocial() bool { return f.flag(FeatureHasSocial) }

// HasInnovation reports whether innovation criteria are present.
func (f FeatureVector) HasInnovation() bool { return f.flag(FeatureHasInnovation) }

// EncodeFeatures is the reference encoder from a record to its feature vector.
// Values and deadlines are stored as ln(1+x), so a published zero stays
// distinguishable from an absent one.
func EncodeFeatures(p *Procurement) FeatureVector {
	f := FeatureVector{
		FeaturePriceWeight:   p.PriceWeight,
		FeatureQualityWeight: p.QualityWeight,
		FeatureEUFunded:      boolFeature(p.EUFunded),
		FeatureFramework:     boolFeature(p.Framework),
		FeatureHasGreen:      boolFeature(p.HasGreen),
		FeatureHasSocial:     boolFeature(p.HasSocial),
		FeatureHasInnovation: boolFeature(p.HasInnovation),
	}

	if v, ok := p.Value(); ok && v >= 0 {
		f[FeatureLogValue] = math.Log1p(v)
		f[FeatureValueMissing] = 0
	} else {
		f[FeatureLogValue] = 0
		f[FeatureValueMissing] = 1
	}

	if p.DeadlineDays != nil && *p.DeadlineDays >= 0 {
		f[FeatureLogDeadline] = math.Log1p(*p.DeadlineDays)
		f[FeatureDeadlineMissing] = 0
	} else {
		f[FeatureLogDeadline] = 0
		f[FeatureDeadlineMissing] = 1
	}

	if p.TenderCount != nil && *p.TenderCount >= 0 {
		f[FeatureTendersReceived] = float64(*p.TenderCount)
		f[FeatureTendersMissing] = 0
	} else {
		f[FeatureTendersReceived] = unknownTendersSentinel
		f[FeatureTendersMissing] = 1
	}

	for _, s := range Sectors {
		f[SectorFeature(s)] = boolFeature(p.Sector == s)
	}
	for _, pr := range Procedures {
		f[ProcedureFeature(pr)] = boolFeature(p.Procedure == pr)
	}
	for _, c := range ContractTypes {
		f[ContractFeature(c)] = boolFeature(p.ContractType == c)
	}

	return f
}

// expRounded inverts the log encoding, rounding away the float error so that
// an encoded 30-day deadline decodes to exactly 30.
func expRounded(x float64) float64 {
	return math.Round(math.Expm1(x)*1e6) / 1e6
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
