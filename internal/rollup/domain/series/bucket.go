package series

// AggregationBucket is the sum of period production over a coarser period.
type AggregationBucket struct {
	Key         string  `json:"bucket_key"`
	SumKWh      float64 `json:"sum_kwh"`
	MemberCount int     `json:"member_count"`
}

func bucketKeyLayout(target Granularity) (string, error) {
	switch target {
	case GranularityMonth:
		return "2006-01", nil
	case GranularityYear:
		return "2006", nil
	default:
		return "", ErrInvalidBucketTarget
	}
}

// Rebucket groups a fine-grained record series into coarser buckets by
// summing production, preserving chronological bucket order. Summing
// consecutive deltas telescopes, so the result agrees with a direct
// coarse-granularity conversion over the same underlying counter.
func Rebucket(records []PeriodRecord, target Granularity) ([]AggregationBucket, error) {
	layout, err := bucketKeyLayout(target)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(records))
	buckets := make([]AggregationBucket, 0, len(records))
	for _, record := range records {
		key := record.Date.Format(layout)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, AggregationBucket{Key: key})
		}
		buckets[i].SumKWh += record.ProductionKWh
		buckets[i].MemberCount++
	}
	return buckets, nil
}
