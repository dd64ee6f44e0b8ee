package domain

import "fmt"

// Severity ranks compliance findings and integrity flags.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity validates a severity string.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return Severity(s), nil
	}
	return "", fmt.Errorf("%w: severity %q", ErrUnknownCategory, s)
}

// ComplianceRule is one catalog entry. The catalog is fixed at startup.
type ComplianceRule struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Explanation string   `json:"explanation" yaml:"explanation"`
	Severity    Severity `json:"severity" yaml:"severity"`
}

// ComplianceFinding is a triggered rule for one record.
type ComplianceFinding struct {
	RecordID string   `json:"recordId"`
	RuleID   string   `json:"ruleId"`
	Title    string   `json:"title"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// ChecklistStatus is the outcome of one legal checklist item.
type ChecklistStatus string

const (
	ChecklistPass    ChecklistStatus = "pass"
	ChecklistWarning ChecklistStatus = "warning"
)

// ChecklistItem is one line of the compliance checklist.
type ChecklistItem struct {
	Item   string          `json:"item"`
	Law    string          `json:"law"`
	Status ChecklistStatus `json:"status"`
	Detail string          `json:"detail"`
}

// CustomRule is an operator-supplied watch rule written as a CEL expression.
type CustomRule struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Expression  string   `json:"expression"`
	Severity    Severity `json:"severity"`
	Enabled     bool     `json:"enabled"`
}

// BuyerProfile aggregates a contracting authority's history. Read-only.
type BuyerProfile struct {
	Name             string   `json:"name"`
	ProcurementCount int      `json:"procurementCount"`
	PriceOnlyRate    float64  `json:"priceOnlyRate"`
	SingleBidderRate float64  `json:"singleBidderRate"`
	AvgTenders       float64  `json:"avgTenders"`
	DisputeCount     int      `json:"disputeCount"`
	RiskScore        float64  `json:"riskScore"`
	RiskFlags        []string `json:"riskFlags,omitempty"`
}

// IntegrityFlag is a derived governance concern for one record.
type IntegrityFlag struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// IntegrityLookups holds precomputed integrity signals for one record.
// Nil pointers mean the signal was not computed.
type IntegrityLookups struct {
	DonorLinked         bool     `json:"donorLinked"`
	HiddenConcentration bool     `json:"hiddenConcentration"`
	CPVPriceZScore      *float64 `json:"cpvPriceZScore,omitempty"`
	ThresholdProximity  bool     `json:"thresholdProximity"`
	WinnerAgeYears      *float64 `json:"winnerAgeYears,omitempty"`
}

// Dispute is one formal challenge decision from the dispute ledger.
type Dispute struct {
	DisputeID  string `json:"disputeId"`
	Challenger string `json:"challenger"`
	Submitted  string `json:"submitted"`
	Status     string `json:"status"`
	Object     string `json:"object"`
	ReviewNo   string `json:"reviewNo"`
	Result     string `json:"result"`
}

// IssueLabel is one issue predicted by the narrative model. SustainProbability
// is the model's categorical estimate: high, medium or low.
type IssueLabel struct {
	Label              string `json:"label"`
	Evidence           string `json:"evidence,omitempty"`
	SustainProbability string `json:"sustainProbability"`
}

// Likely reports whether the issue is rated high or medium.
func (i IssueLabel) Likely() bool {
	return i.SustainProbability == "high" || i.SustainProbability == "medium"
}

// NarrativeResult is the narrative model's output for a record.
type NarrativeResult struct {
	Scenario string       `json:"scenario"`
	Issues   []IssueLabel `json:"issues,omitempty"`
}
