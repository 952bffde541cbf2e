package meterdb

import (
	"time"

	"github.com/NotCoffee418/multical401/pkg/meterutils"
	"github.com/NotCoffee418/multical401/pkg/types"
)

// MeterDbReading is a types.Reading in integer storage units.
type MeterDbReading struct {
	Meter                  string `db:"meter"`
	Timestamp              int64  `db:"timestamp"`
	EnergyMJ               uint32 `db:"energy_mj"`
	GasEquivalentDM3       uint32 `db:"gas_equivalent_dm3"`
	VolumeDM3              uint32 `db:"volume_dm3"`
	OperatingHours         int64  `db:"operating_hours"`
	TemperatureSupplyCenti int32  `db:"temperature_supply_centi"`
	TemperatureReturnCenti int32  `db:"temperature_return_centi"`
	TemperatureDeltaCenti  int32  `db:"temperature_delta_centi"`
	PowerW                 uint32 `db:"power_w"`
	FlowLPH                int64  `db:"flow_lph"`
	PeakFlowLPH            int64  `db:"peak_flow_lph"`
	InfoCode               int64  `db:"info_code"`
}

// Snapshot models - retained cumulative standings
type SnapshotHourly struct {
	Meter                    string `db:"meter"`
	HourStart                int64  `db:"hour_start"`
	EnergyMJStanding         uint32 `db:"energy_mj_standing"`
	GasEquivalentDM3Standing uint32 `db:"gas_equivalent_dm3_standing"`
	VolumeDM3Standing        uint32 `db:"volume_dm3_standing"`
	AvgPowerW                uint32 `db:"avg_power_w"`
	AvgFlowLPH               uint32 `db:"avg_flow_lph"`
	SampleCount              uint32 `db:"sample_count"`
}

func FromReading(meter string, r types.Reading) *MeterDbReading {
	return &MeterDbReading{
		Meter:                  meter,
		Timestamp:              r.Timestamp.Unix(),
		EnergyMJ:               meterutils.GJToMJ(r.EnergyGJ),
		GasEquivalentDM3:       meterutils.M3ToDM3(r.GasEquivalentM3),
		VolumeDM3:              meterutils.M3ToDM3(r.VolumeM3),
		OperatingHours:         r.OperatingHours,
		TemperatureSupplyCenti: meterutils.CelsiusToCenti(r.TemperatureSupplyC),
		TemperatureReturnCenti: meterutils.CelsiusToCenti(r.TemperatureReturnC),
		TemperatureDeltaCenti:  meterutils.CelsiusToCenti(r.TemperatureDeltaC),
		PowerW:                 meterutils.KwToW(r.PowerKW),
		FlowLPH:                r.FlowLPH,
		PeakFlowLPH:            r.PeakFlowLPH,
		InfoCode:               r.InfoCode,
	}
}

func (m *MeterDbReading) ToReading() types.Reading {
	return types.Reading{
		Timestamp:          time.Unix(m.Timestamp, 0).UTC(),
		EnergyGJ:           meterutils.MJToGJ(m.EnergyMJ),
		GasEquivalentM3:    meterutils.DM3ToM3(m.GasEquivalentDM3),
		VolumeM3:           meterutils.DM3ToM3(m.VolumeDM3),
		OperatingHours:     m.OperatingHours,
		TemperatureSupplyC: meterutils.CentiToCelsius(m.TemperatureSupplyCenti),
		TemperatureReturnC: meterutils.CentiToCelsius(m.TemperatureReturnCenti),
		TemperatureDeltaC:  meterutils.CentiToCelsius(m.TemperatureDeltaCenti),
		PowerKW:            meterutils.WToKw(m.PowerW),
		FlowLPH:            m.FlowLPH,
		PeakFlowLPH:        m.PeakFlowLPH,
		InfoCode:           m.InfoCode,
	}
}
