package evidence

import (
	"encoding/json"

	id "residency/pkg/domain"
)

// Handle addresses a record inside an Arena. Handles are dense indices;
// a lower handle means higher evidentiary priority when the arena was
// built from normalized output.
type Handle int32

// Arena owns an immutable, ordered set of records.
type Arena struct {
	records []Record
	byID    map[id.EvidenceID]Handle
}

// NewArena copies records into a new arena. Record ids must be unique.
func NewArena(records []Record) *Arena {
	a := &Arena{
		records: make([]Record, len(records)),
		byID:    make(map[id.EvidenceID]Handle, len(records)),
	}
	copy(a.records, records)
	for i, r := range a.records {
		a.byID[r.ID] = Handle(i)
	}
	return a
}

// Len returns the number of records.
func (a *Arena) Len() int {
	if a == nil {
		return 0
	}
	return len(a.records)
}

// Valid reports whether h addresses a record in this arena.
func (a *Arena) Valid(h Handle) bool {
	return h >= 0 && int(h) < a.Len()
}

// Get returns the record for h. It panics on a foreign handle.
func (a *Arena) Get(h Handle) Record {
	return a.records[h]
}

// Lookup finds a record's handle by id.
func (a *Arena) Lookup(evidenceID id.EvidenceID) (Handle, bool) {
	h, ok := a.byID[evidenceID]
	return h, ok
}

// Records returns a copy of the records in handle order.
func (a *Arena) Records() []Record {
	if a == nil {
		return nil
	}
	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}

// IDs maps handles to evidence ids.
func (a *Arena) IDs(handles []Handle) []id.EvidenceID {
	out := make([]id.EvidenceID, len(handles))
	for i, h := range handles {
		out[i] = a.records[h].ID
	}
	return out
}

func (a *Arena) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a.records)
}

func (a *Arena) UnmarshalJSON(b []byte) error {
	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		return err
	}
	*a = *NewArena(records)
	return nil
}
