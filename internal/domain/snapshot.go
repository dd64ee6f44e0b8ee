package domain

import (
	"sort"
	"time"
)

// Record bundles a procurement with its encoded features and display title.
type Record struct {
	Procurement
	Features FeatureVector `json:"features"`
	Title    string        `json:"title,omitempty"`
}

// Snapshot is the immutable corpus and lookup tables the engine reads.
// It is built once and shared by concurrent requests without locking.
type Snapshot struct {
	Version     string
	LoadedAt    time.Time
	Model       *LinearModel
	Records     map[string]*Record
	Buyers      map[string]*BuyerProfile
	Disputes    map[string][]Dispute
	Integrity   map[string]IntegrityLookups
	Narratives  map[string]*NarrativeResult
	CustomRules []CustomRule

	order []string
}

// NewSnapshot indexes records by id and freezes the scan order. Records must
// not be added after construction; lookup tables may be filled before sharing.
func NewSnapshot(version string, model *LinearModel, records []*Record) *Snapshot {
	s := &Snapshot{
		Version:    version,
		LoadedAt:   time.Now().UTC(),
		Model:      model,
		Records:    make(map[string]*Record, len(records)),
		Buyers:     make(map[string]*BuyerProfile),
		Disputes:   make(map[string][]Dispute),
		Integrity:  make(map[string]IntegrityLookups),
		Narratives: make(map[string]*NarrativeResult),
	}
	for _, r := range records {
		s.Records[r.ID] = r
	}
	s.reindex()
	return s
}

func (s *Snapshot) reindex() {
	s.order = make([]string, 0, len(s.Records))
	for id := range s.Records {
		s.order = append(s.order, id)
	}
	sort.Strings(s.order)
}

// Record returns the record for id, or nil.
func (s *Snapshot) Record(id string) *Record {
	return s.Records[id]
}

// Buyer returns the buyer profile, or nil when the buyer is unknown.
func (s *Snapshot) Buyer(name string) *BuyerProfile {
	if name == "" {
		return nil
	}
	return s.Buyers[name]
}

// IsDisputed reports whether the record appears in the dispute ledger.
func (s *Snapshot) IsDisputed(id string) bool {
	_, ok := s.Disputes[id]
	return ok
}

// Each calls fn for every record in id order until fn returns false.
func (s *Snapshot) Each(fn func(*Record) bool) {
	for _, id := range s.order {
		if !fn(s.Records[id]) {
			return
		}
	}
}

// Len returns the number of records in the corpus.
func (s *Snapshot) Len() int {
	return len(s.Records)
}
