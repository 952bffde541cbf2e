package types

import "strings"

type StateClass string

const (
	StateClassNone        StateClass = ""
	StateClassTotal       StateClass = "total"
	StateClassMeasurement StateClass = "measurement"
)

// SensorDescriptor is display metadata for one value of a Reading.
type SensorDescriptor struct {
	Key         string     `json:"key"`
	Position    int        `json:"position"`
	Label       string     `json:"label"`
	DeviceClass string     `json:"device_class"`
	Unit        string     `json:"unit"`
	StateClass  StateClass `json:"state_class"`
	Icon        string     `json:"icon"`
}

// SensorTypes is read-only after init.
var SensorTypes = map[string]SensorDescriptor{}

// SensorKeys in position order.
var SensorKeys []string

func init() {
	for _, d := range []SensorDescriptor{
		{"energy", PosEnergy, "Energy usage", "energy", "GJ", StateClassTotal, "mdi:radiator"},
		{"gas_equivalent_m3", PosGasEquivalent, "Gas equivalent energy usage in m³", "gas", "m³", StateClassTotal, "mdi:radiator"},
		{"volume", PosVolume, "Supply water volume used", "volume", "m³", StateClassMeasurement, "mdi:water"},
		{"operating_hours", PosOperatingHours, "Lifetime operating hours", "duration", "h", StateClassMeasurement, "mdi:timer-sand"},
		{"temperature_supply", PosTemperatureSupply, "Supply water temperature", "temperature", "°C", StateClassMeasurement, "mdi:coolant-temperature"},
		{"temperature_return", PosTemperatureReturn, "Return water temperature", "temperature", "°C", StateClassMeasurement, "mdi:coolant-temperature"},
		{"temperature_delta", PosTemperatureDelta, "Temperature difference", "temperature", "°C", StateClassMeasurement, "mdi:coolant-temperature"},
		{"power", PosPower, "Power consumption", "power", "kW", StateClassMeasurement, "mdi:flash"},
		{"flow", PosFlow, "Supply water flow", "water", "l/h", StateClassMeasurement, "mdi:water"},
		{"peak_flow", PosPeakFlow, "Supply water flow - peak", "water", "l/h", StateClassMeasurement, "mdi:water"},
		{"info_code", PosInfoCode, "Info code", "", "", StateClassNone, "mdi:alert-outline"},
	} {
		SensorTypes[d.Key] = d
		SensorKeys = append(SensorKeys, d.Key)
	}
}

// LookupSensor finds a descriptor by key, ignoring case.
func LookupSensor(key string) (SensorDescriptor, bool) {
	d, ok := SensorTypes[strings.ToLower(strings.TrimSpace(key))]
	return d, ok
}
