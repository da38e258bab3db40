package cache

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Unit sizes in milliseconds.
const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour

	// minutesPerHour and hoursPerDay are used for duration formatting.
	minutesPerHour = 60
	hoursPerDay    = 24
)

// maxAgePattern is the whole-string grammar: digits, optional space, unit.
var maxAgePattern = regexp.MustCompile(`^\s*(\d+)\s*([a-z]+)\s*$`) //nolint:gochecknoglobals // compiled once

// unitMillis maps every accepted unit token to its size in milliseconds.
//
//nolint:gochecknoglobals // lookup table
var unitMillis = map[string]int64{
	"d":            msPerDay,
	"days":         msPerDay,
	"h":            msPerHour,
	"hours":        msPerHour,
	"m":            msPerMinute,
	"minutes":      msPerMinute,
	"s":            msPerSecond,
	"seconds":      msPerSecond,
	"ms":           1,
	"milliseconds": 1,
}

// AgeSpec is the structured form of a max age. Each unit has a short and a
// long field; the long one wins when both are set. Units are summed.
type AgeSpec struct {
	D  int64 `json:"d,omitempty"  yaml:"d,omitempty"`
	H  int64 `json:"h,omitempty"  yaml:"h,omitempty"`
	M  int64 `json:"m,omitempty"  yaml:"m,omitempty"`
	S  int64 `json:"s,omitempty"  yaml:"s,omitempty"`
	MS int64 `json:"ms,omitempty" yaml:"ms,omitempty"`

	Days         int64 `json:"days,omitempty"         yaml:"days,omitempty"`
	Hours        int64 `json:"hours,omitempty"        yaml:"hours,omitempty"`
	Minutes      int64 `json:"minutes,omitempty"      yaml:"minutes,omitempty"`
	Seconds      int64 `json:"seconds,omitempty"      yaml:"seconds,omitempty"`
	Milliseconds int64 `json:"milliseconds,omitempty" yaml:"milliseconds,omitempty"`
}

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// Millis returns the total number of milliseconds described by a. Negative
// fields and totals beyond the range of time.Duration fail with
// ErrInvalidDuration.
func (a AgeSpec) Millis() (int64, error) {
	parts := [...]struct{ n, unit int64 }{
		{pick(a.Days, a.D), msPerDay},
		{pick(a.Hours, a.H), msPerHour},
		{pick(a.Minutes, a.M), msPerMinute},
		{pick(a.Seconds, a.S), msPerSecond},
		{pick(a.Milliseconds, a.MS), 1},
	}

	var total int64
	for _, p := range parts {
		if p.n < 0 {
			return 0, fmt.Errorf("%w: negative field in %+v", ErrInvalidDuration, a)
		}
		if p.n > (maxMillis-total)/p.unit {
			return 0, fmt.Errorf("%w: %+v overflows", ErrInvalidDuration, a)
		}
		total += p.n * p.unit
	}
	return total, nil
}

// Duration returns a as a time.Duration.
func (a AgeSpec) Duration() (time.Duration, error) {
	ms, err := a.Millis()
	if err != nil {
		return 0, err
	}
	return millisToDuration(ms)
}

func pick(long, short int64) int64 {
	if long != 0 {
		return long
	}
	return short
}

// millisToDuration converts a non-negative millisecond count, refusing
// values that do not fit in a time.Duration.
func millisToDuration(ms int64) (time.Duration, error) {
	if ms < 0 {
		return 0, fmt.Errorf("%w: negative max age %dms", ErrInvalidDuration, ms)
	}
	if ms > maxMillis {
		return 0, fmt.Errorf("%w: %dms overflows", ErrInvalidDuration, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ParseMaxAge parses a "<number> <unit>" string such as "15 seconds" or "1 m".
func ParseMaxAge(s string) (time.Duration, error) {
	ms, err := parseMaxAgeMillis(s)
	if err != nil {
		return 0, err
	}
	return millisToDuration(ms)
}

func parseMaxAgeMillis(s string) (int64, error) {
	m := maxAgePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	size, ok := unitMillis[m[2]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q in %q", ErrInvalidDuration, m[2], s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidDuration, s, err)
	}
	if n > math.MaxInt64/size {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDuration, s)
	}
	return n * size, nil
}

// MaxAgeToMs converts any supported max-age form to milliseconds: integer
// or float milliseconds, time.Duration, a "<number> <unit>" string, AgeSpec
// or *AgeSpec. Negative numbers are rejected.
func MaxAgeToMs(v any) (int64, error) {
	var ms int64
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		ms = int64(t)
	case int64:
		ms = t
	case float64:
		if math.IsNaN(t) || t >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, t)
		}
		ms = int64(t)
	case time.Duration:
		ms = t.Milliseconds()
	case string:
		return parseMaxAgeMillis(t)
	case AgeSpec:
		return t.Millis()
	case *AgeSpec:
		if t == nil {
			return 0, nil
		}
		return t.Millis()
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidDuration, v)
	}
	if ms < 0 {
		return 0, fmt.Errorf("%w: negative max age %dms", ErrInvalidDuration, ms)
	}
	return ms, nil
}

// MaxAge converts any form accepted by MaxAgeToMs to a time.Duration.
func MaxAge(v any) (time.Duration, error) {
	ms, err := MaxAgeToMs(v)
	if err != nil {
		return 0, err
	}
	return millisToDuration(ms)
}

// MaxAgeValue holds a max age decoded from configuration. In YAML it may be
// a number of milliseconds, a "<number> <unit>" string, or an AgeSpec
// mapping.
type MaxAgeValue struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *MaxAgeValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if ms, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
			d, convErr := millisToDuration(ms)
			if convErr != nil {
				return convErr
			}
			v.Duration = d
			return nil
		}
		d, err := ParseMaxAge(node.Value)
		if err != nil {
			return err
		}
		v.Duration = d
		return nil
	case yaml.MappingNode:
		var spec AgeSpec
		if err := node.Decode(&spec); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDuration, err)
		}
		d, err := spec.Duration()
		if err != nil {
			return err
		}
		v.Duration = d
		return nil
	default:
		return fmt.Errorf("%w: unsupported YAML node at line %d", ErrInvalidDuration, node.Line)
	}
}

// MarshalYAML renders the value as integer milliseconds, or null when no
// max age is set.
func (v MaxAgeValue) MarshalYAML() (interface{}, error) {
	if v.Duration < 0 {
		return nil, nil
	}
	return v.Milliseconds(), nil
}

// FormatDuration formats a duration in a compact human-readable way.
// Examples: "250ms", "30s", "5m", "2h30m", "3d2h".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < hoursPerDay*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % minutesPerHour
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	days := int(d.Hours()) / hoursPerDay
	hours := int(d.Hours()) % hoursPerDay
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%dh", days, hours)
}
