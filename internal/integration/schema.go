package integration

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/babybuddy"
)

// Kind is the type a service field is coerced to.
type Kind int

const (
	// KindString accepts a JSON string.
	KindString Kind = iota
	// KindInt accepts an integral number or a numeric string.
	KindInt
	// KindFloat accepts a number or a numeric string.
	KindFloat
	// KindBool accepts a boolean or "true"/"false".
	KindBool
	// KindTime accepts HH:MM[:SS] or a datetime and rejects the future.
	KindTime
	// KindDate accepts YYYY-MM-DD.
	KindDate
)

// Field describes one service field.
type Field struct {
	Name     string
	Kind     Kind
	Required bool

	// DefaultNow fills a missing time or date field with the current time.
	DefaultNow bool

	// Options restricts a string field to a fixed set of values.
	Options []string
}

// Schema validates service data before a handler runs.
type Schema struct {
	Fields []Field

	// Check runs after every field has been coerced.
	Check func(url.Values) error
}

// Validate coerces data to form values.
//
// Parameters:
//   - data: decoded service data; unknown keys are rejected
//   - now: reference time for defaults and the future check
//   - loc: site timezone for time-of-day values and dates
//
// Returns:
//   - url.Values: form-encoded values keyed by field name
//   - error: wraps ErrInvalidCall
func (s Schema) Validate(data map[string]any, now time.Time, loc *time.Location) (url.Values, error) {
	if loc == nil {
		loc = time.UTC
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !slices.ContainsFunc(s.Fields, func(f Field) bool { return f.Name == k }) {
			return nil, fmt.Errorf("%w: unexpected field %q", ErrInvalidCall, k)
		}
	}

	values := url.Values{}
	for _, f := range s.Fields {
		raw, ok := data[f.Name]
		if !ok || raw == nil {
			switch {
			case f.DefaultNow && f.Kind == KindDate:
				values.Set(f.Name, now.In(loc).Format(time.DateOnly))
			case f.DefaultNow:
				values.Set(f.Name, babybuddy.FormatDateTime(now.In(loc)))
			case f.Required:
				return nil, fmt.Errorf("%w: missing required field %q", ErrInvalidCall, f.Name)
			}
			continue
		}

		v, err := f.coerce(raw, now, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", ErrInvalidCall, f.Name, err)
		}
		values.Set(f.Name, v)
	}

	if s.Check != nil {
		if err := s.Check(values); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCall, err)
		}
	}
	return values, nil
}

func (f Field) coerce(raw any, now time.Time, loc *time.Location) (string, error) {
	switch f.Kind {
	case KindInt:
		n, err := toFloat(raw)
		if err != nil {
			return "", err
		}
		if n != float64(int64(n)) {
			return "", fmt.Errorf("%v is not an integer", raw)
		}
		return strconv.FormatInt(int64(n), 10), nil

	case KindFloat:
		n, err := toFloat(raw)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil

	case KindBool:
		switch v := raw.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return "", fmt.Errorf("%q is not a boolean", v)
			}
			return strconv.FormatBool(b), nil
		}
		return "", fmt.Errorf("expected a boolean, got %T", raw)
	}

	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T", raw)
	}
	s = strings.TrimSpace(s)

	switch f.Kind {
	case KindTime:
		t, err := babybuddy.DateTimeFromTime(s, now, loc)
		if err != nil {
			return "", err
		}
		return babybuddy.FormatDateTime(t), nil
	case KindDate:
		return babybuddy.ParseDate(s, now, loc)
	}

	if f.Required && s == "" {
		return "", errors.New("must not be empty")
	}
	if len(f.Options) > 0 && !slices.Contains(f.Options, s) {
		return "", fmt.Errorf("%q is not one of %s", s, strings.Join(f.Options, ", "))
	}
	return s, nil
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", raw)
}
