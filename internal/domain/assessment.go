package domain

import (
	"errors"
	"time"
)

// ErrNoData is returned when a record has no feature vector or the model is absent.
var ErrNoData = errors.New("no data available for this id")

// Quality dimension names.
const (
	DimensionCompetition  = "Competition & Access"
	DimensionCriteria     = "Criteria Quality"
	DimensionStrategic    = "Strategic Value"
	DimensionTransparency = "Transparency"
	DimensionIntegrity    = "Integrity & Governance"
)

// DimensionNames lists the rubric dimensions in scoring order.
var DimensionNames = []string{
	DimensionCompetition,
	DimensionCriteria,
	DimensionStrategic,
	DimensionTransparency,
	DimensionIntegrity,
}

// QualityDimension is one scored rubric dimension.
type QualityDimension struct {
	Name        string `json:"name"`
	Score       int    `json:"score"`
	Max         int    `json:"max"`
	Finding     string `json:"finding"`
	Explanation string `json:"explanation"`
}

// QualityAssessment is the full rubric result.
type QualityAssessment struct {
	OverallScore int                          `json:"overallScore"`
	Label        string                       `json:"label"`
	Summary      string                       `json:"summary"`
	Dimensions   map[string]*QualityDimension `json:"dimensions"`
}

// Ordered returns the dimensions in scoring order.
func (q *QualityAssessment) Ordered() []*QualityDimension {
	out := make([]*QualityDimension, 0, len(DimensionNames))
	for _, name := range DimensionNames {
		if d, ok := q.Dimensions[name]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Priority is the informational urgency of an action item.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// ActionItem is one recommended action. Action text is its identity.
type ActionItem struct {
	Priority  Priority `json:"priority"`
	Action    string   `json:"action"`
	Rationale string   `json:"rationale"`
}

// ComparableMatch is a historically similar record.
type ComparableMatch struct {
	RecordID      string   `json:"recordId"`
	Title         string   `json:"title"`
	Buyer         string   `json:"buyer"`
	Value         *float64 `json:"value,omitempty"`
	Disputed      bool     `json:"disputed"`
	RiskScore     float64  `json:"riskScore"`
	PriceWeight   float64  `json:"priceWeight"`
	QualityWeight float64  `json:"qualityWeight"`
}

// SectorBenchmark summarizes one sector. Total 0 means insufficient sample.
type SectorBenchmark struct {
	Sector           Sector   `json:"sector"`
	Total            int      `json:"total"`
	DisputeRate      float64  `json:"disputeRate"`
	MedianValue      *float64 `json:"medianValue"`
	MeanValue        *float64 `json:"meanValue"`
	PriceOnlyRate    float64  `json:"priceOnlyRate"`
	AvgQualityWeight float64  `json:"avgQualityWeight"`
}

// Sufficient reports whether the benchmark has any records behind it.
func (b *SectorBenchmark) Sufficient() bool {
	return b != nil && b.Total > 0
}

// Assessment is the combined engine output for one record.
type Assessment struct {
	ID              string              `json:"id"`
	RecordID        string              `json:"recordId"`
	Title           string              `json:"title,omitempty"`
	RiskScore       float64             `json:"riskScore"`
	RiskLabel       string              `json:"riskLabel"`
	Summary         string              `json:"summary"`
	Contributions   []RiskContribution  `json:"contributions"`
	Findings        []ComplianceFinding `json:"findings"`
	Checklist       []ChecklistItem     `json:"checklist"`
	IntegrityFlags  []IntegrityFlag     `json:"integrityFlags"`
	Quality         *QualityAssessment  `json:"quality,omitempty"`
	Actions         []ActionItem        `json:"actions"`
	Comparables     []ComparableMatch   `json:"comparables"`
	Benchmark       *SectorBenchmark    `json:"benchmark,omitempty"`
	Disputes        []Dispute           `json:"disputes,omitempty"`
	ComponentErrors map[string]string   `json:"componentErrors,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
	Metadata        AssessmentMetadata  `json:"metadata"`
}

// HasHighSeverity reports whether any finding is high severity.
func (a *Assessment) HasHighSeverity() bool {
	for _, f := range a.Findings {
		if f.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID         string           `json:"traceId"`
	ComponentMs     map[string]int64 `json:"componentMs"`
	TotalMs         int64            `json:"totalMs"`
	RulesApplied    int              `json:"rulesApplied"`
	EngineVersion   string           `json:"engineVersion"`
	SnapshotVersion string           `json:"snapshotVersion"`
}
