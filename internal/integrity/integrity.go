// Package integrity derives governance flags from precomputed integrity lookups.
package integrity

import (
	"fmt"

	"github.com/opensource-finance/procuresight/internal/domain"
)

// Flag names.
const (
	FlagDonorLink          = "Political Donor Link"
	FlagHiddenOwnership    = "Hidden Ownership Concentration"
	FlagCPVPriceAnomaly    = "CPV Price Anomaly"
	FlagThresholdProximity = "EU Threshold Proximity"
	FlagYoungCompany       = "Young Company"
)

// Flags converts one record's lookups into flags. A nil lookup yields none.
func Flags(l *domain.IntegrityLookups) []domain.IntegrityFlag {
	if l == nil {
		return nil
	}

	var flags []domain.IntegrityFlag
	if l.DonorLinked {
		flags = append(flags, domain.IntegrityFlag{
			Name:        FlagDonorLink,
			Description: "Board member donated ≥5K EUR to political party.",
			Severity:    domain.SeverityHigh,
		})
	}
	if l.HiddenConcentration {
		flags = append(flags, domain.IntegrityFlag{
			Name:        FlagHiddenOwnership,
			Description: "Shared beneficial owner with another winner at same buyer.",
			Severity:    domain.SeverityHigh,
		})
	}
	if z := l.CPVPriceZScore; z != nil && *z > 2.0 {
		flags = append(flags, domain.IntegrityFlag{
			Name:        FlagCPVPriceAnomaly,
			Description: fmt.Sprintf("Value is %.1fσ above CPV-4 median.", *z),
			Severity:    domain.SeverityMedium,
		})
	}
	if l.ThresholdProximity {
		flags = append(flags, domain.IntegrityFlag{
			Name:        FlagThresholdProximity,
			Description: "Value at 90-99% of EU threshold.",
			Severity:    domain.SeverityMedium,
		})
	}
	if age := l.WinnerAgeYears; age != nil && *age < 2 {
		flags = append(flags, domain.IntegrityFlag{
			Name:        FlagYoungCompany,
			Description: fmt.Sprintf("Winner was %.1f years old at award.", *age),
			Severity:    domain.SeverityMedium,
		})
	}
	return flags
}
