package babybuddy

import (
	"fmt"
	"strings"
	"time"
)

// clockLayouts are time-of-day inputs, combined with today's date.
var clockLayouts = []string{"15:04:05", "15:04"}

// naiveLayouts are datetimes without an offset, interpreted in the site timezone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// DateTimeFromTime turns a start/end/time service field into a datetime.
//
// A time of day ("08:30" or "08:30:15") is placed on today's date in loc.
// A datetime without an offset is interpreted in loc. An RFC3339 value keeps
// the instant its offset names and is converted to loc. A result after now
// fails with ErrValidation.
//
// Parameters:
//   - value: The field as supplied by the caller
//   - now: The current time (injected for tests)
//   - loc: Site timezone
//
// Returns:
//   - time.Time: The resolved datetime in loc
//   - error: ErrValidation for unparseable or future values
func DateTimeFromTime(value string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	localNow := now.In(loc)

	t, err := parseDateTime(value, localNow, loc)
	if err != nil {
		return time.Time{}, err
	}

	if t.After(now) {
		return time.Time{}, fmt.Errorf("%w: time cannot be in the future", ErrValidation)
	}
	return t.In(loc), nil
}

func parseDateTime(value string, localNow time.Time, loc *time.Location) (time.Time, error) {
	for _, layout := range clockLayouts {
		if c, err := time.Parse(layout, value); err == nil {
			y, m, d := localNow.Date()
			return time.Date(y, m, d, c.Hour(), c.Minute(), c.Second(), 0, loc), nil
		}
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q is not a time (HH:MM[:SS]) or datetime (RFC3339)", ErrValidation, value)
}

// ParseDate validates a YYYY-MM-DD date. An empty value yields today in loc.
func ParseDate(value string, now time.Time, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return now.In(loc).Format(time.DateOnly), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a date (YYYY-MM-DD)", ErrValidation, value)
	}
	return t.Format(time.DateOnly), nil
}

// FormatDateTime renders t the way the server expects in form posts.
func FormatDateTime(t time.Time) string {
	return t.Format(time.RFC3339)
}
