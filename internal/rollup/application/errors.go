package application

import "errors"

var (
	// ErrNoDevices is returned when a fetch cycle is requested over an empty roster.
	ErrNoDevices = errors.New("rollup: no devices in roster")
	// ErrAllDevicesFailed is returned when not a single device could be fetched.
	ErrAllDevicesFailed = errors.New("rollup: all devices failed")
	// ErrNilSource is returned when the orchestrator is built without a sample source.
	ErrNilSource = errors.New("rollup: nil sample source")
	// ErrNilCache is returned when the orchestrator is built without a key cache.
	ErrNilCache = errors.New("rollup: nil key cache")
)
