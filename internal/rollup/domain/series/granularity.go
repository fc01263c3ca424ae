package series

import "time"

// Granularity is the time resolution of a production rollup.
type Granularity string

const (
	GranularityMinute Granularity = "MINUTE"
	GranularityDay    Granularity = "DAY"
	GranularityMonth  Granularity = "MONTH"
	GranularityYear   Granularity = "YEAR"
)

// IsValid checks if the granularity is one of the supported values.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityMinute, GranularityDay, GranularityMonth, GranularityYear:
		return true
	default:
		return false
	}
}

// periodKeyLayout returns the fixed-width layout used for comparable period keys.
// Keys of the same granularity sort chronologically as plain strings.
func periodKeyLayout(g Granularity) (string, error) {
	switch g {
	case GranularityMinute:
		return "200601021504", nil
	case GranularityDay:
		return "20060102", nil
	case GranularityMonth:
		return "200601", nil
	case GranularityYear:
		return "2006", nil
	default:
		return "", ErrInvalidGranularity
	}
}

// TruncatePeriod snaps t to the start of its period at the given granularity.
func TruncatePeriod(t time.Time, g Granularity) (time.Time, error) {
	switch g {
	case GranularityMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location()), nil
	case GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()), nil
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()), nil
	case GranularityYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location()), nil
	default:
		return time.Time{}, ErrInvalidGranularity
	}
}

// PreviousPeriodStart returns the start of the period exactly one
// granularity step before t's period.
func PreviousPeriodStart(t time.Time, g Granularity) (time.Time, error) {
	start, err := TruncatePeriod(t, g)
	if err != nil {
		return time.Time{}, err
	}
	switch g {
	case GranularityMinute:
		return start.Add(-time.Minute), nil
	case GranularityDay:
		return start.AddDate(0, 0, -1), nil
	case GranularityMonth:
		return start.AddDate(0, -1, 0), nil
	case GranularityYear:
		return start.AddDate(-1, 0, 0), nil
	default:
		return time.Time{}, ErrInvalidGranularity
	}
}

// PeriodKey builds the comparable key for t's period.
func PeriodKey(t time.Time, g Granularity) (string, error) {
	if t.IsZero() {
		return "", ErrInvalidPeriodStart
	}
	layout, err := periodKeyLayout(g)
	if err != nil {
		return "", err
	}
	start, err := TruncatePeriod(t, g)
	if err != nil {
		return "", err
	}
	return start.Format(layout), nil
}

// PreviousPeriodKey returns the key one granularity step before key.
func PreviousPeriodKey(key string, g Granularity) (string, error) {
	start, err := decodePeriodKey(key, g)
	if err != nil {
		return "", err
	}
	prev, err := PreviousPeriodStart(start, g)
	if err != nil {
		return "", err
	}
	return PeriodKey(prev, g)
}

func decodePeriodKey(key string, g Granularity) (time.Time, error) {
	layout, err := periodKeyLayout(g)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(layout, key, time.UTC)
	if err != nil {
		return time.Time{}, ErrTimestampParse
	}
	return t, nil
}
