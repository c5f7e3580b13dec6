package babybuddy

import "time"

// Endpoint describes one tracked record type.
type Endpoint struct {
	// Key is the endpoint name in the server's /api/ listing.
	Key string

	// Name is the display name of the "last record" value, e.g. "Last feeding".
	Name string

	// StateField is the record field presented as the record's state.
	StateField string

	// TimeField timestamps the record for telemetry.
	TimeField string

	// Numeric fields are exported as telemetry values as-is.
	Numeric []string

	// Durations are "HH:MM:SS" fields exported as "{field}_seconds".
	Durations []string
}

var endpoints = []Endpoint{
	{Key: "bmi", Name: "Last BMI", StateField: "bmi", TimeField: "date", Numeric: []string{"bmi"}},
	{Key: "changes", Name: "Last change", StateField: "time", TimeField: "time", Numeric: []string{"amount"}},
	{Key: "feedings", Name: "Last feeding", StateField: "start", TimeField: "start", Numeric: []string{"amount"}, Durations: []string{"duration"}},
	{Key: "head-circumference", Name: "Last head circumference", StateField: "head_circumference", TimeField: "date", Numeric: []string{"head_circumference"}},
	{Key: "height", Name: "Last height", StateField: "height", TimeField: "date", Numeric: []string{"height"}},
	{Key: "notes", Name: "Last note", StateField: "time", TimeField: "time"},
	{Key: "pumping", Name: "Last pumping", StateField: "amount", TimeField: "start", Numeric: []string{"amount"}},
	{Key: "sleep", Name: "Last sleep", StateField: "start", TimeField: "start", Durations: []string{"duration"}},
	{Key: "temperature", Name: "Last temperature", StateField: "temperature", TimeField: "time", Numeric: []string{"temperature"}},
	{Key: "timers", Name: "Last timer", StateField: "start", TimeField: "start", Durations: []string{"duration"}},
	{Key: "tummy-times", Name: "Last tummy time", StateField: "duration", TimeField: "start", Durations: []string{"duration"}},
	{Key: "weight", Name: "Last weight", StateField: "weight", TimeField: "date", Numeric: []string{"weight"}},
}

// Endpoints returns the tracked record types in a fixed order.
// The returned slice is a copy.
func Endpoints() []Endpoint {
	out := make([]Endpoint, len(endpoints))
	copy(out, endpoints)
	return out
}

// LookupEndpoint returns the descriptor for key.
func LookupEndpoint(key string) (Endpoint, bool) {
	for _, e := range endpoints {
		if e.Key == key {
			return e, true
		}
	}
	return Endpoint{}, false
}

// State returns the record's state value, or nil for an empty record.
func (e Endpoint) State(r Record) any {
	return r[e.StateField]
}

// Telemetry extracts the numeric values of r. Durations are converted to seconds.
func (e Endpoint) Telemetry(r Record) map[string]float64 {
	values := make(map[string]float64)
	for _, f := range e.Numeric {
		if v, ok := r.Float(f); ok {
			values[f] = v
		}
	}
	for _, f := range e.Durations {
		if d, ok := r.Duration(f); ok {
			values[f+"_seconds"] = d.Seconds()
		}
	}
	return values
}

// Timestamp returns the record's own time, or fallback when it has none.
func (e Endpoint) Timestamp(r Record, fallback time.Time) time.Time {
	if t, ok := r.Time(e.TimeField); ok {
		return t
	}
	return fallback
}
