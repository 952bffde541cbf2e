package types

import (
	"encoding/json"
	"time"
)

// Positions of the values in a Reading.
// Energy, gas equivalent and volume are cumulative counters.
const (
	PosEnergy = iota
	PosGasEquivalent
	PosVolume
	PosOperatingHours
	PosTemperatureSupply
	PosTemperatureReturn
	PosTemperatureDelta
	PosPower
	PosFlow
	PosPeakFlow
	PosInfoCode

	PositionCount
)

// CumulativePositions are the monotonic counters checked for implausible jumps.
var CumulativePositions = []int{PosEnergy, PosGasEquivalent, PosVolume}

// Reading is one accepted response from the meter.
// Only ever constructed with every field decoded.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`

	// Cumulative
	EnergyGJ        float64 `json:"energy_gj"`
	GasEquivalentM3 float64 `json:"gas_equivalent_m3"`
	VolumeM3        float64 `json:"volume_m3"`
	OperatingHours  int64   `json:"operating_hours"`

	// Temperatures
	TemperatureSupplyC float64 `json:"temperature_supply_c"`
	TemperatureReturnC float64 `json:"temperature_return_c"`
	TemperatureDeltaC  float64 `json:"temperature_delta_c"`

	// Instantaneous
	PowerKW     float64 `json:"power_kw"`
	FlowLPH     int64   `json:"flow_lph"`
	PeakFlowLPH int64   `json:"peak_flow_lph"`

	InfoCode int64 `json:"info_code"`
}

// Value returns the numeric value at the given position.
func (r Reading) Value(pos int) (float64, bool) {
	switch pos {
	case PosEnergy:
		return r.EnergyGJ, true
	case PosGasEquivalent:
		return r.GasEquivalentM3, true
	case PosVolume:
		return r.VolumeM3, true
	case PosOperatingHours:
		return float64(r.OperatingHours), true
	case PosTemperatureSupply:
		return r.TemperatureSupplyC, true
	case PosTemperatureReturn:
		return r.TemperatureReturnC, true
	case PosTemperatureDelta:
		return r.TemperatureDeltaC, true
	case PosPower:
		return r.PowerKW, true
	case PosFlow:
		return float64(r.FlowLPH), true
	case PosPeakFlow:
		return float64(r.PeakFlowLPH), true
	case PosInfoCode:
		return float64(r.InfoCode), true
	}
	return 0, false
}

// MeterReadingMessage is what gets broadcast to live subscribers.
type MeterReadingMessage struct {
	Meter   string  `json:"meter"`
	Reading Reading `json:"reading"`
}

func (m *MeterReadingMessage) ToJsonBytes() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return data
}

// Returns nil when the payload is not a reading message.
func MeterReadingMessageFromJsonBytes(data []byte) *MeterReadingMessage {
	var msg MeterReadingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}
	if msg.Meter == "" || msg.Reading.Timestamp.IsZero() {
		return nil
	}
	return &msg
}
