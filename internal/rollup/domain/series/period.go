package series

import (
	"fmt"
	"time"
)

// GrowthPercentMax is the saturating value reported when production starts
// after a zero period. It stands for "new production", not a ratio.
const GrowthPercentMax = 999999.0

const traceNoPriorSample = "no prior sample"

// Window is a requested reporting range, inclusive of both endpoints.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow validates and constructs a Window.
func NewWindow(start, end time.Time) (Window, error) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return Window{}, ErrEmptyWindow
	}
	return Window{Start: start, End: end}, nil
}

// Days returns the window length in days, inclusive of both endpoints.
func (w Window) Days() int {
	start := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(w.End.Year(), w.End.Month(), w.End.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours()/24) + 1
}

// PeriodRecord is the production figure for one period inside a window.
type PeriodRecord struct {
	Key           string    `json:"period_key"`
	Date          time.Time `json:"date"`
	ProductionKWh float64   `json:"production_kwh"`
	CumulativeKWh float64   `json:"cumulative_kwh"`
	GrowthPercent *float64  `json:"growth_percent"`
	Boundary      bool      `json:"boundary"`
	Trace         string    `json:"trace,omitempty"`
}

// Converter turns a normalized cumulative series into per-period production
// records. The caller must have fetched samples from one granularity step
// before window start through window end, so that the first in-window period
// has a lookback sample to difference against.
type Converter struct {
	granularity Granularity
}

// NewConverter constructs a Converter.
func NewConverter(g Granularity) (*Converter, error) {
	if !g.IsValid() {
		return nil, ErrInvalidGranularity
	}
	return &Converter{granularity: g}, nil
}

// Convert emits one PeriodRecord per in-window sample, ascending by key.
// A negative counter delta (device reset) is clamped to zero and annotated
// in the trace; it is never an error. A window holding only the lookback
// sample yields an empty slice.
func (c *Converter) Convert(samples []NormalizedSample, window Window) ([]PeriodRecord, error) {
	startKey, err := PeriodKey(window.Start, c.granularity)
	if err != nil {
		return nil, err
	}
	endKey, err := PeriodKey(window.End, c.granularity)
	if err != nil {
		return nil, err
	}
	if endKey < startKey {
		return nil, ErrEmptyWindow
	}

	byKey := make(map[string]NormalizedSample, len(samples))
	inWindow := make([]NormalizedSample, 0, len(samples))
	for _, sample := range samples {
		byKey[sample.Key] = sample
		if sample.Key >= startKey && sample.Key <= endKey {
			inWindow = append(inWindow, sample)
		}
	}

	records := make([]PeriodRecord, 0, len(inWindow))
	for i, sample := range inWindow {
		record := PeriodRecord{
			Key:           sample.Key,
			Date:          sample.PeriodStart,
			CumulativeKWh: sample.CumulativeKWh,
			Boundary:      i == 0,
		}

		previous, ok := c.previousSample(inWindow, i, byKey)
		if !ok {
			// First in-window period without a lookback sample: the zero is
			// "unmeasured", not real production. Boundary + trace carry that.
			record.ProductionKWh = 0
			record.Trace = traceNoPriorSample
		} else {
			delta := sample.CumulativeKWh - previous.CumulativeKWh
			if delta < 0 {
				record.ProductionKWh = 0
				record.Trace = fmt.Sprintf("counter reset: delta %.6f kWh clamped to 0", delta)
			} else {
				record.ProductionKWh = delta
			}
		}

		if i > 0 {
			prev := records[i-1]
			// An unmeasured boundary zero is not a production figure;
			// comparing against it would fake a "new production" signal.
			if !(prev.Boundary && prev.Trace == traceNoPriorSample) {
				record.GrowthPercent = growthPercent(prev.ProductionKWh, record.ProductionKWh)
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (c *Converter) previousSample(inWindow []NormalizedSample, i int, byKey map[string]NormalizedSample) (NormalizedSample, bool) {
	if i > 0 {
		return inWindow[i-1], true
	}
	lookbackKey, err := PreviousPeriodKey(inWindow[i].Key, c.granularity)
	if err != nil {
		return NormalizedSample{}, false
	}
	previous, ok := byKey[lookbackKey]
	return previous, ok
}

// growthPercent computes period-over-period change. A period following zero
// production saturates to GrowthPercentMax instead of dividing by zero;
// zero following zero has no meaningful growth and stays nil.
func growthPercent(previous, current float64) *float64 {
	if previous == 0 {
		if current == 0 {
			return nil
		}
		value := GrowthPercentMax
		return &value
	}
	value := (current - previous) / previous * 100
	return &value
}
