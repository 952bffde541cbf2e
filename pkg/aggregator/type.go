package aggregator

// HourlyResult describes what AggregateAndCleanup did for one meter.
type HourlyResult struct {
	Meter       string
	HourStart   int64
	Snapshotted bool
	Cleaned     int64
}
