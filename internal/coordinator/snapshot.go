package coordinator

import (
	"slices"
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/babybuddy"
)

// Snapshot is the result of one successful refresh pass.
//
// Records has exactly one key per child in Children. Under each child, an
// endpoint key is present only when its fetch succeeded; an endpoint with no
// records maps to an empty Record.
//
// A Snapshot handed out by the coordinator is never mutated afterwards.
type Snapshot struct {
	EntryID   string                              `json:"entry_id"`
	Children  []babybuddy.Child                   `json:"children"`
	Records   map[int]map[string]babybuddy.Record `json:"records"`
	FetchedAt time.Time                           `json:"fetched_at"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := &Snapshot{
		EntryID:   s.EntryID,
		Children:  slices.Clone(s.Children),
		FetchedAt: s.FetchedAt,
	}
	if s.Records != nil {
		cp.Records = make(map[int]map[string]babybuddy.Record, len(s.Records))
		for id, byEndpoint := range s.Records {
			inner := make(map[string]babybuddy.Record, len(byEndpoint))
			for key, rec := range byEndpoint {
				inner[key] = rec.Clone()
			}
			cp.Records[id] = inner
		}
	}
	return cp
}

// Latest returns the stored record for a child and endpoint.
// The second value is false when the slot is absent.
func (s *Snapshot) Latest(childID int, endpoint string) (babybuddy.Record, bool) {
	if s == nil {
		return nil, false
	}
	rec, ok := s.Records[childID][endpoint]
	return rec, ok
}

// Child looks up a child by id.
func (s *Snapshot) Child(id int) (babybuddy.Child, bool) {
	if s == nil {
		return babybuddy.Child{}, false
	}
	for _, c := range s.Children {
		if c.ID == id {
			return c, true
		}
	}
	return babybuddy.Child{}, false
}

// ChildIDs returns the snapshot's child ids in ascending order.
func (s *Snapshot) ChildIDs() []int {
	if s == nil {
		return nil
	}
	ids := make([]int, 0, len(s.Records))
	for id := range s.Records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
