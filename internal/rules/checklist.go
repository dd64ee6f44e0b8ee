package rules

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/procuresight/internal/domain"
)

type checkItem struct{ name, law string }

var (
	itemProcedure = checkItem{"Procedure selection", "RHS 49"}
	itemCriteria  = checkItem{"Evaluation criteria", "RHS 85"}
	itemValue     = checkItem{"Estimated value publication", "RHS 23"}
	itemDeadline  = checkItem{"Submission deadline", "RHS 93"}
	itemStrategic = checkItem{"Strategic procurement", "RHS 77-79"}
)

// Checklist builds the legal checklist from the record's encoded features.
// The strategic item is omitted for low-value records without strategic criteria.
func Checklist(proc domain.Procedure, contract domain.ContractType, f domain.FeatureVector) []domain.ChecklistItem {
	pw, qw := f.PriceWeight(), f.QualityWeight()
	value, known := f.Value()
	above := func(limit float64) bool { return known && value > limit }

	items := make([]domain.ChecklistItem, 0, 5)
	add := func(item checkItem, status domain.ChecklistStatus, detail string) {
		items = append(items, domain.ChecklistItem{
			Item:   fmt.Sprintf("%s (%s)", item.name, item.law),
			Law:    item.law,
			Status: status,
			Detail: detail,
		})
	}

	switch {
	case proc.IsNonCompetitive() && above(200_000):
		add(itemProcedure, domain.ChecklistWarning,
			"Non-competitive procedure used on a contract that may exceed simplified "+
				"procedure thresholds. Verify that exemption grounds under RHS 28 are documented.")
	case proc.IsNonCompetitive():
		add(itemProcedure, domain.ChecklistPass,
			"Non-competitive procedure used within appropriate value range.")
	case proc == domain.ProcedureOpen:
		add(itemProcedure, domain.ChecklistPass,
			"Open procedure ensures maximum competition and transparency.")
	default:
		add(itemProcedure, domain.ChecklistPass,
			fmt.Sprintf("Procedure type (%s) noted. Verify appropriateness for contract scope.", proc))
	}

	switch {
	case domain.IsPriceOnly(pw, qw) && contract == domain.ContractServices && above(200_000):
		add(itemCriteria, domain.ChecklistWarning,
			"Price-only evaluation on high-value services. EU guidelines recommend "+
				"MEAT evaluation for complex contracts.")
	case pw == 0 && qw == 0:
		add(itemCriteria, domain.ChecklistWarning,
			"No evaluation criteria weights detected. Verify criteria are published.")
	default:
		add(itemCriteria, domain.ChecklistPass,
			fmt.Sprintf("Evaluation criteria defined (price %s / quality %s).",
				domain.Percent(pw), domain.Percent(qw)))
	}

	if known {
		add(itemValue, domain.ChecklistPass, "Estimated value is published.")
	} else {
		add(itemValue, domain.ChecklistWarning,
			"Estimated contract value not published. Required for transparency.")
	}

	if days, ok := f.DeadlineDays(); ok {
		if days < 15 && proc == domain.ProcedureOpen {
			add(itemDeadline, domain.ChecklistWarning,
				fmt.Sprintf("Deadline of ~%.0f days may be insufficient for open procedure. "+
					"Minimum 35 days for open EU-level procedures.", days))
		} else {
			add(itemDeadline, domain.ChecklistPass,
				fmt.Sprintf("Submission deadline of ~%.0f days appears adequate.", days))
		}
	} else {
		add(itemDeadline, domain.ChecklistPass,
			"Deadline information not available for assessment.")
	}

	var strategic []string
	if f.HasGreen() {
		strategic = append(strategic, "environmental")
	}
	if f.HasSocial() {
		strategic = append(strategic, "social")
	}
	if f.HasInnovation() {
		strategic = append(strategic, "innovation")
	}
	switch {
	case len(strategic) > 0:
		add(itemStrategic, domain.ChecklistPass,
			fmt.Sprintf("Strategic criteria included: %s. This aligns with national "+
				"procurement strategy goals.", strings.Join(strategic, ", ")))
	case above(500_000):
		add(itemStrategic, domain.ChecklistWarning,
			"No strategic criteria (green, social, innovation) on a high-value contract. "+
				"Consider whether sustainability or innovation criteria could apply.")
	}

	return items
}
