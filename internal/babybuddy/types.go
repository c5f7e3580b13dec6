package babybuddy

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// ChildrenEndpoint is the endpoint listing children. It is not a tracked record type.
const ChildrenEndpoint = "children"

// Child is a child as returned by the children endpoint.
type Child struct {
	ID        int    `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date"`
	Slug      string `json:"slug,omitempty"`
	Picture   string `json:"picture,omitempty"`
}

// Name returns "First Last".
func (c Child) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ChildList is the body of GET /api/children/.
type ChildList struct {
	Count   int     `json:"count"`
	Results []Child `json:"results"`
}

// RecordList is the body of any record endpoint, e.g. GET /api/feedings/?child=1&limit=1.
type RecordList struct {
	Count   int      `json:"count"`
	Results []Record `json:"results"`
}

// Record is one opaque record (feeding, sleep, change and so on).
// The set of fields depends on the endpoint and the server version.
type Record map[string]any

// ID returns the record's "id" field.
func (r Record) ID() (int, bool) {
	f, ok := r.Float("id")
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Float returns a numeric field. Baby Buddy sends most numbers as JSON
// numbers but decimal fields as strings, so both are accepted.
func (r Record) Float(field string) (float64, bool) {
	switch v := r[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Duration parses a "HH:MM:SS" or "D HH:MM:SS" duration field such as
// a sleep or tummy time duration.
func (r Record) Duration(field string) (time.Duration, bool) {
	s, ok := r[field].(string)
	if !ok || s == "" {
		return 0, false
	}

	var days int
	if d, rest, found := strings.Cut(s, " "); found {
		n, err := strconv.Atoi(d)
		if err != nil {
			return 0, false
		}
		days, s = n, rest
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}

	total := time.Duration(days)*24*time.Hour +
		time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second))
	return total, true
}

// Time parses a datetime ("2026-03-01T08:30:00+00:00") or date
// ("2026-03-01") field.
func (r Record) Time(field string) (time.Time, bool) {
	s, ok := r[field].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Record:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}
