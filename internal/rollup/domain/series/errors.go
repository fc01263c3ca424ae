package series

import "errors"

var (
	// ErrInvalidGranularity is returned when granularity is unsupported.
	ErrInvalidGranularity = errors.New("series: invalid granularity")
	// ErrInvalidPeriodStart is returned when a period timestamp is zero.
	ErrInvalidPeriodStart = errors.New("series: invalid period start")
	// ErrTimestampParse is returned when a timestamp encoding cannot be decoded.
	ErrTimestampParse = errors.New("series: unparsable timestamp")
	// ErrEmptyWindow is returned when a requested window is zero or inverted.
	ErrEmptyWindow = errors.New("series: empty window")
	// ErrInvalidCapacity is returned when a device capacity is not positive.
	ErrInvalidCapacity = errors.New("series: invalid device capacity")
	// ErrEmptyFleet is returned when a yield ranking is requested over no devices.
	ErrEmptyFleet = errors.New("series: empty fleet")
	// ErrInvalidBucketTarget is returned when re-bucketing to an unsupported granularity.
	ErrInvalidBucketTarget = errors.New("series: invalid bucket target")
)
