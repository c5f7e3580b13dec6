package babybuddy

import (
	"errors"
	"testing"
	"time"
)

func TestDateTimeFromTime(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 12:00 in Berlin (UTC+1 in March).
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr error
	}{
		{
			name:  "time of day uses today in site zone",
			value: "08:30",
			want:  time.Date(2026, 3, 1, 8, 30, 0, 0, loc),
		},
		{
			name:  "time of day with seconds",
			value: "11:59:59",
			want:  time.Date(2026, 3, 1, 11, 59, 59, 0, loc),
		},
		{
			name:  "naive datetime interpreted in site zone",
			value: "2026-02-28T22:15",
			want:  time.Date(2026, 2, 28, 22, 15, 0, 0, loc),
		},
		{
			name:  "rfc3339 keeps its offset",
			value: "2026-03-01T10:00:00Z",
			want:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339 offset converted to site zone",
			value: "2026-03-01T05:00:00-05:00",
			want:  time.Date(2026, 3, 1, 11, 0, 0, 0, loc),
		},
		{
			name:  "now itself is allowed",
			value: "12:00",
			want:  time.Date(2026, 3, 1, 12, 0, 0, 0, loc),
		},
		{
			name:    "future time of day",
			value:   "12:00:01",
			wantErr: ErrValidation,
		},
		{
			name:    "future datetime",
			value:   "2026-03-02T00:00:00Z",
			wantErr: ErrValidation,
		},
		{
			// 11:30 UTC is 12:30 in Berlin; the offset is not dropped.
			name:    "future once the offset is honoured",
			value:   "2026-03-01T11:30:00Z",
			wantErr: ErrValidation,
		},
		{
			name:    "garbage",
			value:   "noon",
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DateTimeFromTime(tt.value, now, loc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DateTimeFromTime(%q) error = %v, want %v", tt.value, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DateTimeFromTime(%q) error = %v", tt.value, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("DateTimeFromTime(%q) = %v, want %v", tt.value, got, tt.want)
			}
			if got.Location() != loc {
				t.Errorf("location = %v, want %v", got.Location(), loc)
			}
		})
	}
}

func TestDateTimeFromTime_NilLocation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := DateTimeFromTime("06:00", now, nil)
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if !got.Equal(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)) {
		t.Errorf("got %v", got)
	}
}

func TestParseDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*3600)

	if got, err := ParseDate("", now, tokyo); err != nil || got != "2026-03-02" {
		t.Errorf("ParseDate(\"\") = (%q, %v), want today in site zone", got, err)
	}
	if got, err := ParseDate("2025-12-24", now, nil); err != nil || got != "2025-12-24" {
		t.Errorf("ParseDate() = (%q, %v)", got, err)
	}
	if _, err := ParseDate("24/12/2025", now, nil); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseDate(bad) error = %v, want ErrValidation", err)
	}
}

func TestFormatDateTime(t *testing.T) {
	ts := time.Date(2026, 3, 1, 8, 30, 0, 0, time.FixedZone("CET", 3600))
	if got := FormatDateTime(ts); got != "2026-03-01T08:30:00+01:00" {
		t.Errorf("FormatDateTime() = %q", got)
	}
}
