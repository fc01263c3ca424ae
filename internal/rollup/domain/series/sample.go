package series

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// UnitWhToKWh converts the raw watt-hour counter into kilowatt-hours.
const UnitWhToKWh = 1.0 / 1000.0

// RawSample is one cumulative-counter reading as received from the
// telemetry source. Depending on the endpoint the value arrives as a
// JSON number or as a quoted string; both are accepted.
type RawSample struct {
	Timestamp string
	Value     any
}

// NormalizedSample is a decoded, unit-converted reading keyed by its period.
type NormalizedSample struct {
	Key           string    `json:"key"`
	PeriodStart   time.Time `json:"period_start"`
	CumulativeKWh float64   `json:"cumulative_kwh"`
	RawUnits      float64   `json:"raw_units"`
}

// Normalizer turns raw fetched rows into a sorted, de-duplicated cumulative
// series for one device and metric. It is the single boundary where the
// upstream's loosely-shaped rows become the canonical representation.
type Normalizer struct {
	granularity Granularity
	unitFactor  float64
}

// NewNormalizer constructs a Normalizer. unitFactor converts raw units to kWh.
func NewNormalizer(g Granularity, unitFactor float64) (*Normalizer, error) {
	if !g.IsValid() {
		return nil, ErrInvalidGranularity
	}
	if unitFactor <= 0 {
		unitFactor = UnitWhToKWh
	}
	return &Normalizer{granularity: g, unitFactor: unitFactor}, nil
}

// Normalize converts a raw batch into an ascending, key-unique series.
// Samples with undecodable timestamps or non-numeric values are dropped
// and counted; they never fail the batch. Samples sharing a period key
// collapse last-wins in input order.
func (n *Normalizer) Normalize(batch []RawSample) ([]NormalizedSample, int) {
	dropped := 0
	byKey := make(map[string]NormalizedSample, len(batch))
	for _, raw := range batch {
		key, start, err := NormalizeKey(raw.Timestamp, n.granularity)
		if err != nil {
			dropped++
			continue
		}
		value, ok := numericValue(raw.Value)
		if !ok {
			dropped++
			continue
		}
		byKey[key] = NormalizedSample{
			Key:           key,
			PeriodStart:   start,
			CumulativeKWh: value * n.unitFactor,
			RawUnits:      value,
		}
	}

	result := make([]NormalizedSample, 0, len(byKey))
	for _, sample := range byKey {
		result = append(result, sample)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, dropped
}

func numericValue(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
