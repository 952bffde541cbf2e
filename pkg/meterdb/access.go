package meterdb

import (
	"database/sql"
	"errors"
)

const readingColumns = "meter, timestamp, energy_mj, gas_equivalent_dm3, volume_dm3, operating_hours, " +
	"temperature_supply_centi, temperature_return_centi, temperature_delta_centi, " +
	"power_w, flow_lph, peak_flow_lph, info_code"

// InsertReading stores a reading, a repeated (meter, timestamp) replaces the earlier row.
func InsertReading(reading *MeterDbReading) error {
	db := GetDB()

	_, err := db.Exec(
		"INSERT OR REPLACE INTO readings ("+readingColumns+") "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		reading.Meter,
		reading.Timestamp,
		reading.EnergyMJ,
		reading.GasEquivalentDM3,
		reading.VolumeDM3,
		reading.OperatingHours,
		reading.TemperatureSupplyCenti,
		reading.TemperatureReturnCenti,
		reading.TemperatureDeltaCenti,
		reading.PowerW,
		reading.FlowLPH,
		reading.PeakFlowLPH,
		reading.InfoCode,
	)
	return err
}

// LatestReading returns nil when the meter has no stored readings.
func LatestReading(meter string) (*MeterDbReading, error) {
	row := GetDB().QueryRow(
		"SELECT "+readingColumns+" FROM readings WHERE meter = ? ORDER BY timestamp DESC LIMIT 1",
		meter,
	)
	reading, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return reading, err
}

// ReadingsBetween returns readings with from <= timestamp <= to, oldest first.
func ReadingsBetween(meter string, from, to int64) ([]*MeterDbReading, error) {
	rows, err := GetDB().Query(
		"SELECT "+readingColumns+" FROM readings "+
			"WHERE meter = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp",
		meter, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []*MeterDbReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}

func Meters() ([]string, error) {
	rows, err := GetDB().Query("SELECT DISTINCT meter FROM readings ORDER BY meter")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meters []string
	for rows.Next() {
		var meter string
		if err := rows.Scan(&meter); err != nil {
			return nil, err
		}
		meters = append(meters, meter)
	}
	return meters, rows.Err()
}

func InsertSnapshotHourly(snapshot *SnapshotHourly) error {
	_, err := GetDB().Exec(
		"INSERT OR REPLACE INTO snapshot_hourly "+
			"(meter, hour_start, energy_mj_standing, gas_equivalent_dm3_standing, volume_dm3_standing, "+
			"avg_power_w, avg_flow_lph, sample_count) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		snapshot.Meter,
		snapshot.HourStart,
		snapshot.EnergyMJStanding,
		snapshot.GasEquivalentDM3Standing,
		snapshot.VolumeDM3Standing,
		snapshot.AvgPowerW,
		snapshot.AvgFlowLPH,
		snapshot.SampleCount,
	)
	return err
}

func SnapshotsBetween(meter string, from, to int64) ([]*SnapshotHourly, error) {
	rows, err := GetDB().Query(
		"SELECT meter, hour_start, energy_mj_standing, gas_equivalent_dm3_standing, volume_dm3_standing, "+
			"avg_power_w, avg_flow_lph, sample_count FROM snapshot_hourly "+
			"WHERE meter = ? AND hour_start >= ? AND hour_start <= ? ORDER BY hour_start",
		meter, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*SnapshotHourly
	for rows.Next() {
		var s SnapshotHourly
		if err := rows.Scan(
			&s.Meter, &s.HourStart, &s.EnergyMJStanding, &s.GasEquivalentDM3Standing,
			&s.VolumeDM3Standing, &s.AvgPowerW, &s.AvgFlowLPH, &s.SampleCount,
		); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, &s)
	}
	return snapshots, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*MeterDbReading, error) {
	var r MeterDbReading
	err := row.Scan(
		&r.Meter,
		&r.Timestamp,
		&r.EnergyMJ,
		&r.GasEquivalentDM3,
		&r.VolumeDM3,
		&r.OperatingHours,
		&r.TemperatureSupplyCenti,
		&r.TemperatureReturnCenti,
		&r.TemperatureDeltaCenti,
		&r.PowerW,
		&r.FlowLPH,
		&r.PeakFlowLPH,
		&r.InfoCode,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
