package series

import (
	"fmt"
	"sort"
)

// DeviceSeries is one device's fetched and converted data for a single
// fetch/compute cycle. It is rebuilt wholesale on every parameter change.
type DeviceSeries struct {
	DeviceID       string             `json:"device_id"`
	Beneficiary    string             `json:"beneficiary"`
	CapacityKW     float64            `json:"capacity_kw"`
	Samples        []NormalizedSample `json:"samples,omitempty"`
	Periods        []PeriodRecord     `json:"periods"`
	DroppedSamples int                `json:"dropped_samples,omitempty"`
	FetchError     string             `json:"fetch_error,omitempty"`
}

// TotalProductionKWh sums period production for the series.
func (d DeviceSeries) TotalProductionKWh() float64 {
	var total float64
	for _, record := range d.Periods {
		total += record.ProductionKWh
	}
	return total
}

// DeviceYield is a device's capacity-normalized performance over a window.
type DeviceYield struct {
	DeviceID      string  `json:"device_id"`
	Beneficiary   string  `json:"beneficiary"`
	CapacityKW    float64 `json:"capacity_kw"`
	TotalKWh      float64 `json:"total_kwh"`
	AvgDailyKWh   float64 `json:"avg_daily_kwh"`
	SpecificYield float64 `json:"specific_yield"`
	WindowDays    int     `json:"window_days"`
}

// FleetSummary holds fleet-wide statistics over a ranked fleet.
type FleetSummary struct {
	Devices           int     `json:"devices"`
	TotalKWh          float64 `json:"total_kwh"`
	MeanAvgDailyKWh   float64 `json:"mean_avg_daily_kwh"`
	MeanSpecificYield float64 `json:"mean_specific_yield"`
	TotalCapacityKW   float64 `json:"total_capacity_kw"`
	BestDeviceID      string  `json:"best_device_id"`
	WorstDeviceID     string  `json:"worst_device_id"`
}

// RankBySpecificYield ranks a fleet descending by yield (kWh per kW of
// installed capacity), ties broken by device id ascending so the order is
// deterministic regardless of insertion order. A non-positive capacity is
// invalid configuration, never a silent division.
func RankBySpecificYield(fleet []DeviceSeries, window Window) ([]DeviceYield, FleetSummary, error) {
	if len(fleet) == 0 {
		return nil, FleetSummary{}, ErrEmptyFleet
	}
	days := window.Days()
	if days <= 0 {
		return nil, FleetSummary{}, ErrEmptyWindow
	}

	yields := make([]DeviceYield, 0, len(fleet))
	summary := FleetSummary{Devices: len(fleet)}
	for _, device := range fleet {
		if device.CapacityKW <= 0 {
			return nil, FleetSummary{}, fmt.Errorf("%w: device %s capacity %.3f kW", ErrInvalidCapacity, device.DeviceID, device.CapacityKW)
		}
		total := device.TotalProductionKWh()
		avgDaily := total / float64(days)
		yields = append(yields, DeviceYield{
			DeviceID:      device.DeviceID,
			Beneficiary:   device.Beneficiary,
			CapacityKW:    device.CapacityKW,
			TotalKWh:      total,
			AvgDailyKWh:   avgDaily,
			SpecificYield: avgDaily / device.CapacityKW,
			WindowDays:    days,
		})
		summary.TotalKWh += total
		summary.TotalCapacityKW += device.CapacityKW
	}

	sort.Slice(yields, func(i, j int) bool {
		if yields[i].SpecificYield != yields[j].SpecificYield {
			return yields[i].SpecificYield > yields[j].SpecificYield
		}
		return yields[i].DeviceID < yields[j].DeviceID
	})

	for _, y := range yields {
		summary.MeanAvgDailyKWh += y.AvgDailyKWh
		summary.MeanSpecificYield += y.SpecificYield
	}
	summary.MeanAvgDailyKWh /= float64(len(yields))
	summary.MeanSpecificYield /= float64(len(yields))
	summary.BestDeviceID = yields[0].DeviceID
	summary.WorstDeviceID = yields[len(yields)-1].DeviceID
	return yields, summary, nil
}
