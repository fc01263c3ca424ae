// Package roster describes the installed inverter fleet. The roster is
// maintained outside this service (the operations pipeline's tabular
// store) and is read-only input here.
package roster

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidCapacity is returned when a roster row carries a non-positive
// rated capacity. Yield math divides by capacity, so this is rejected up
// front rather than silently divided.
var ErrInvalidCapacity = errors.New("roster: invalid capacity")

// ErrEmptySerial is returned when a roster row has no device serial.
var ErrEmptySerial = errors.New("roster: empty serial")

// Device is one installed inverter.
type Device struct {
	Serial      string  `json:"serial"`
	Beneficiary string  `json:"beneficiary"`
	CapacityKW  float64 `json:"capacity_kw"`
}

// Validate checks roster invariants.
func (d Device) Validate() error {
	if d.Serial == "" {
		return ErrEmptySerial
	}
	if d.CapacityKW <= 0 {
		return fmt.Errorf("%w: device %s capacity %.3f kW", ErrInvalidCapacity, d.Serial, d.CapacityKW)
	}
	return nil
}

// Repository lists the fleet roster.
type Repository interface {
	List(ctx context.Context) ([]Device, error)
}
