package series

import (
	"errors"
	"math"
	"testing"
)

func TestRebucketDayToMonthPreservesOrder(t *testing.T) {
	records := []PeriodRecord{
		{Key: "20250130", Date: day(2025, 1, 30), ProductionKWh: 1},
		{Key: "20250131", Date: day(2025, 1, 31), ProductionKWh: 2},
		{Key: "20250201", Date: day(2025, 2, 1), ProductionKWh: 3},
		{Key: "20250202", Date: day(2025, 2, 2), ProductionKWh: 4},
	}
	buckets, err := Rebucket(records, GranularityMonth)
	if err != nil {
		t.Fatalf("rebucket: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Key != "2025-01" || buckets[1].Key != "2025-02" {
		t.Fatalf("expected chronological month keys, got %s and %s", buckets[0].Key, buckets[1].Key)
	}
	if buckets[0].SumKWh != 3 || buckets[0].MemberCount != 2 {
		t.Fatalf("january bucket wrong: %+v", buckets[0])
	}
	if buckets[1].SumKWh != 7 || buckets[1].MemberCount != 2 {
		t.Fatalf("february bucket wrong: %+v", buckets[1])
	}
}

func TestRebucketMonthToYear(t *testing.T) {
	records := []PeriodRecord{
		{Key: "202411", Date: day(2024, 11, 1), ProductionKWh: 5},
		{Key: "202412", Date: day(2024, 12, 1), ProductionKWh: 6},
		{Key: "202501", Date: day(2025, 1, 1), ProductionKWh: 7},
	}
	buckets, err := Rebucket(records, GranularityYear)
	if err != nil {
		t.Fatalf("rebucket: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Key != "2024" || buckets[0].SumKWh != 11 {
		t.Fatalf("2024 bucket wrong: %+v", buckets[0])
	}
	if buckets[1].Key != "2025" || buckets[1].SumKWh != 7 {
		t.Fatalf("2025 bucket wrong: %+v", buckets[1])
	}
}

func TestRebucketRejectsFineTarget(t *testing.T) {
	if _, err := Rebucket(nil, GranularityDay); !errors.Is(err, ErrInvalidBucketTarget) {
		t.Fatalf("expected ErrInvalidBucketTarget, got %v", err)
	}
}

// Summing daily deltas over a month telescopes to the same figure as a
// direct month-granularity conversion over the same underlying counter.
func TestRebucketAgreesWithDirectMonthConversion(t *testing.T) {
	counter := 1000.0
	var dailyRaw []RawSample
	at := day(2025, 2, 28)
	for i := 0; i < 32; i++ {
		counter += float64(100 + (i*37)%250)
		dailyRaw = append(dailyRaw, RawSample{Timestamp: EncodeDate(at.AddDate(0, 0, i)), Value: counter})
	}
	dailySamples := mustNormalize(t, GranularityDay, dailyRaw)
	dailyRecords := mustConvert(t, GranularityDay, dailySamples, day(2025, 3, 1), day(2025, 3, 31))
	buckets, err := Rebucket(dailyRecords, GranularityMonth)
	if err != nil {
		t.Fatalf("rebucket: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Key != "2025-03" {
		t.Fatalf("expected a single march bucket, got %+v", buckets)
	}

	// Month-bucketed cumulative samples: the counter as of each month end.
	monthRaw := []RawSample{
		{Timestamp: "20250201", Value: valueAt(t, dailySamples, "20250228")},
		{Timestamp: "20250301", Value: valueAt(t, dailySamples, "20250331")},
	}
	monthSamples := mustNormalize(t, GranularityMonth, monthRaw)
	monthRecords := mustConvert(t, GranularityMonth, monthSamples, day(2025, 3, 1), day(2025, 3, 31))
	if len(monthRecords) != 1 {
		t.Fatalf("expected 1 month record, got %d", len(monthRecords))
	}

	diff := math.Abs(buckets[0].SumKWh - monthRecords[0].ProductionKWh)
	tolerance := 1e-6 * math.Max(math.Abs(buckets[0].SumKWh), 1)
	if diff > tolerance {
		t.Fatalf("telescoping sum mismatch: rebucket %f vs direct %f", buckets[0].SumKWh, monthRecords[0].ProductionKWh)
	}
}

func valueAt(t *testing.T, samples []NormalizedSample, key string) float64 {
	t.Helper()
	for _, sample := range samples {
		if sample.Key == key {
			return sample.RawUnits
		}
	}
	t.Fatalf("no sample for key %s", key)
	return 0
}

func TestRebucketIgnoresNothing(t *testing.T) {
	buckets, err := Rebucket(nil, GranularityMonth)
	if err != nil {
		t.Fatalf("rebucket: %v", err)
	}
	if len(buckets) != 0 {
		t.Fatalf("expected no buckets, got %d", len(buckets))
	}
}
