package models

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/civil"

	"residency/internal/presence/evidence"
	id "residency/pkg/domain"
)

// ConflictType classifies a disagreement.
type ConflictType string

const (
	// ConflictSource: sources of different types assert different countries.
	ConflictSource ConflictType = "source_conflict"
	// ConflictDate: evidence disagrees on the day a move happened.
	ConflictDate ConflictType = "date_conflict"
	// ConflictLocation: sources of the same type assert different countries.
	ConflictLocation ConflictType = "location_conflict"
)

// Resolution is the state of a conflict record.
type Resolution string

const (
	ResolutionPending      Resolution = "pending"
	ResolutionAutomatic    Resolution = "automatic"
	ResolutionUserOverride Resolution = "user_override"
)

// ResolutionRule names the rule that resolved a conflict.
type ResolutionRule string

const (
	RuleReliabilityTieBreak ResolutionRule = "reliability_tie_break"
	RuleConfidenceFloor     ResolutionRule = "confidence_floor"
	RuleUserOverride        ResolutionRule = "user_override"
)

// Candidate is one country asserted for a contested day.
type Candidate struct {
	Country    id.CountryCode     `json:"country"`
	Confidence float64            `json:"confidence"`
	Evidence   []evidence.Handle  `json:"evidence"`
	BestSource evidence.SourceType `json:"best_source"`
}

// ConflictHandle addresses a record inside a ConflictArena.
type ConflictHandle int32

// ConflictRecord documents a contested day and how it was settled.
type ConflictRecord struct {
	ID               id.ConflictID     `json:"id"`
	Type             ConflictType      `json:"type"`
	Date             civil.Date        `json:"date"`
	Attribution      Attribution       `json:"attribution"`
	InvolvedEvidence []evidence.Handle `json:"involved_evidence"`
	Candidates       []Candidate       `json:"candidates"`
	Resolution       Resolution        `json:"resolution"`
	Chosen           *id.CountryCode   `json:"chosen,omitempty"`
	Discarded        []id.CountryCode  `json:"discarded,omitempty"`
	Rule             ResolutionRule    `json:"rule,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// ConflictArena owns conflict records addressed by handle.
type ConflictArena struct {
	records []ConflictRecord
}

// NewConflictArena returns an empty arena.
func NewConflictArena() *ConflictArena {
	return &ConflictArena{records: []ConflictRecord{}}
}

// Add appends a record and returns its handle.
func (a *ConflictArena) Add(r ConflictRecord) ConflictHandle {
	a.records = append(a.records, r)
	return ConflictHandle(len(a.records) - 1)
}

// Get returns the record for h.
func (a *ConflictArena) Get(h ConflictHandle) ConflictRecord {
	return a.records[h]
}

// Len returns the number of records.
func (a *ConflictArena) Len() int {
	if a == nil {
		return 0
	}
	return len(a.records)
}

// Records returns a copy of the records in handle order.
func (a *ConflictArena) Records() []ConflictRecord {
	if a == nil {
		return nil
	}
	out := make([]ConflictRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Find returns the handle of the record with the given id.
func (a *ConflictArena) Find(conflictID id.ConflictID) (ConflictHandle, bool) {
	for i, r := range a.records {
		if r.ID == conflictID {
			return ConflictHandle(i), true
		}
	}
	return 0, false
}

// Merge appends other's records and returns the offset to add to handles
// that referenced other.
func (a *ConflictArena) Merge(other *ConflictArena) ConflictHandle {
	offset := ConflictHandle(len(a.records))
	a.records = append(a.records, other.Records()...)
	return offset
}

func (a *ConflictArena) MarshalJSON() ([]byte, error) {
	if a == nil || a.records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a.records)
}

func (a *ConflictArena) UnmarshalJSON(b []byte) error {
	var records []ConflictRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return err
	}
	if records == nil {
		records = []ConflictRecord{}
	}
	a.records = records
	return nil
}
