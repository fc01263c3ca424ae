package series

import (
	"fmt"
	"time"
)

// The telemetry source is not consistent about timestamp encodings: the
// sample endpoints return compact numeric keys while the device listing
// endpoints return human-readable slash-delimited dates. Everything is
// decoded here into time.Time (UTC) so that samples from different
// endpoints merge and sort consistently.
var timestampLayouts = []string{
	"20060102150405",
	"200601021504",
	"20060102",
	"200601",
	"2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// EncodeDate formats t as a compact YYYYMMDD key.
func EncodeDate(t time.Time) string {
	return t.Format("20060102")
}

// EncodeDateTime formats t as a compact YYYYMMDDHHMMSS key.
func EncodeDateTime(t time.Time) string {
	return t.Format("20060102150405")
}

// DecodeTimestamp parses any of the accepted upstream encodings.
// Unparsable input fails closed with ErrTimestampParse so callers drop
// the sample instead of guessing an ordering position.
func DecodeTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, ErrTimestampParse
	}
	for _, layout := range timestampLayouts {
		if len(raw) != len(layout) {
			continue
		}
		t, err := time.ParseInLocation(layout, raw, time.UTC)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTimestampParse, raw)
}

// NormalizeKey decodes raw and returns the comparable period key plus the
// period start at the given granularity.
func NormalizeKey(raw string, g Granularity) (string, time.Time, error) {
	t, err := DecodeTimestamp(raw)
	if err != nil {
		return "", time.Time{}, err
	}
	start, err := TruncatePeriod(t, g)
	if err != nil {
		return "", time.Time{}, err
	}
	key, err := PeriodKey(start, g)
	if err != nil {
		return "", time.Time{}, err
	}
	return key, start, nil
}
