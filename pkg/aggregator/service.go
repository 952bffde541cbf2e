package aggregator

import (
	"database/sql"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/multical401/pkg/meterdb"
)

// roundToHourStart returns the Unix timestamp of the start of the hour for the given time
func roundToHourStart(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC).Unix()
}

// getHourEnd returns the Unix timestamp of the last second of the hour (next hour start - 1)
func getHourEnd(hourStart int64) int64 {
	return time.Unix(hourStart, 0).Add(time.Hour).Unix() - 1
}

// snapshotHourly stores the last cumulative standing within the hour,
// together with the average power and flow over the hour.
func snapshotHourly(meter string, hourStart int64) (bool, error) {
	db := meterdb.GetDB()
	hourEnd := getHourEnd(hourStart)

	var (
		avgPower float64
		avgFlow  float64
		count    uint32
	)
	err := db.QueryRow(`
		SELECT
			COALESCE(AVG(power_w), 0),
			COALESCE(AVG(flow_lph), 0),
			COUNT(*)
		FROM readings
		WHERE meter = ? AND timestamp >= ? AND timestamp <= ?
	`, meter, hourStart, hourEnd).Scan(&avgPower, &avgFlow, &count)
	if err != nil {
		return false, err
	}

	// No entry within timeframe, that's okay
	if count == 0 {
		return false, nil
	}

	var snapshot meterdb.SnapshotHourly
	err = db.QueryRow(`
		SELECT energy_mj, gas_equivalent_dm3, volume_dm3
		FROM readings
		WHERE meter = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, meter, hourStart, hourEnd).Scan(
		&snapshot.EnergyMJStanding,
		&snapshot.GasEquivalentDM3Standing,
		&snapshot.VolumeDM3Standing,
	)
	if err != nil {
		return false, err
	}

	snapshot.Meter = meter
	snapshot.HourStart = hourStart
	snapshot.AvgPowerW = uint32(avgPower)
	snapshot.AvgFlowLPH = uint32(avgFlow)
	snapshot.SampleCount = count

	return true, meterdb.InsertSnapshotHourly(&snapshot)
}

// cleanupOldData removes raw readings older than the retention window,
// but only once the hourly snapshots reach past the cutoff.
func cleanupOldData(meter string, cutoff time.Time) (int64, error) {
	db := meterdb.GetDB()
	cutoffTimestamp := cutoff.Unix()

	var lastSnapshotHour sql.NullInt64
	err := db.QueryRow("SELECT MAX(hour_start) FROM snapshot_hourly WHERE meter = ?", meter).Scan(&lastSnapshotHour)
	if err != nil {
		return 0, err
	}
	if !lastSnapshotHour.Valid || lastSnapshotHour.Int64 < cutoffTimestamp {
		return 0, nil
	}

	result, err := db.Exec("DELETE FROM readings WHERE meter = ? AND timestamp < ?", meter, cutoffTimestamp)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// AggregateAndCleanup snapshots the hour before now for every meter
// and drops raw readings older than retentionMonths.
func AggregateAndCleanup(now time.Time, retentionMonths int, logger *logrus.Logger) ([]HourlyResult, error) {
	now = now.UTC()
	hourStart := roundToHourStart(now.Add(-time.Hour))
	cutoff := now.AddDate(0, -retentionMonths, 0)

	meters, err := meterdb.Meters()
	if err != nil {
		return nil, err
	}

	var (
		results []HourlyResult
		errs    []error
	)
	for _, meter := range meters {
		log := logger.WithFields(logrus.Fields{
			"meter":      meter,
			"hour_start": time.Unix(hourStart, 0).UTC().Format(time.RFC3339),
		})
		result := HourlyResult{Meter: meter, HourStart: hourStart}

		result.Snapshotted, err = snapshotHourly(meter, hourStart)
		if err != nil {
			log.Errorf("Error creating hourly snapshot: %v", err)
			errs = append(errs, err)
			continue
		}

		result.Cleaned, err = cleanupOldData(meter, cutoff)
		if err != nil {
			log.Errorf("Error cleaning up old data: %v", err)
			errs = append(errs, err)
			continue
		}
		if result.Cleaned > 0 {
			log.Infof("Cleaned up %d readings older than %s", result.Cleaned, cutoff.Format(time.RFC3339))
		}
		results = append(results, result)
	}

	if len(errs) == 0 {
		logger.Info("Aggregation and cleanup completed successfully")
	}
	return results, errors.Join(errs...)
}
