package meter_reader

import (
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/multical401/pkg/interpreter"
	"github.com/NotCoffee418/multical401/pkg/port_reader"
	"github.com/NotCoffee418/multical401/pkg/types"
)

func New(session Exchanger, opts Options) *MeterReader {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Name == "" {
		opts.Name = opts.Path
	}

	return &MeterReader{
		name:         opts.Name,
		path:         opts.Path,
		scanInterval: opts.ScanInterval,
		session:      session,
		clock:        opts.Clock,
		observer:     opts.Observer,
		logger: opts.Logger.WithFields(logrus.Fields{
			"meter": opts.Name,
			"path":  opts.Path,
		}),
	}
}

func (r *MeterReader) Name() string { return r.name }

func (r *MeterReader) Path() string { return r.path }

func (r *MeterReader) ScanInterval() time.Duration { return r.scanInterval }

// Poll reads the meter unless it was already contacted within the scan interval.
// Failed polls keep the previous Reading current and return the reason.
// A throttled poll returns nil.
func (r *MeterReader) Poll() error {
	r.pollMutex.Lock()
	defer r.pollMutex.Unlock()

	now := r.clock.Now()
	if last := r.LastPollTime(); !last.IsZero() && now.Sub(last) < r.scanInterval {
		r.observe(OutcomeThrottled, 0)
		return nil
	}

	raw, err := r.session.Exchange(r.path)
	exchangeTime := r.clock.Now().Sub(now)
	if err != nil {
		r.logger.Errorf("Unable to read from meter: %v", err)
		r.observe(OutcomeTransportError, exchangeTime)
		return err
	}

	candidate, err := interpreter.ParseFrame(raw)
	if err != nil {
		var shapeErr *interpreter.FrameShapeError
		if errors.As(err, &shapeErr) {
			r.logger.WithField("raw", string(raw)).Infof("Skipping, %v", err)
			r.observe(OutcomeFrameShapeError, exchangeTime)
		} else {
			r.logger.WithField("raw", string(raw)).Infof("Error parsing data: %v", err)
			r.observe(OutcomeParseError, exchangeTime)
		}
		return err
	}
	r.logger.WithField("raw", string(raw)).Info("Successfully fetched new data")

	if previous, ok := r.Current(); ok {
		if err := checkOutlier(previous, candidate); err != nil {
			r.logger.WithFields(logrus.Fields{
				"position": err.Position,
				"old":      err.Previous,
				"new":      err.New,
			}).Info("Skipping update; new value is too different from previous")
			r.observe(OutcomeOutlierRejected, exchangeTime)
			return err
		}
	}

	commitTime := r.clock.Now()
	candidate.Timestamp = commitTime

	r.readingMutex.Lock()
	r.latestReading = &candidate
	r.lastPollTime = now
	r.readingMutex.Unlock()

	r.observe(OutcomeCommitted, exchangeTime)
	r.notify(candidate)
	return nil
}

// Current returns the last accepted Reading, false if there never was one.
func (r *MeterReader) Current() (types.Reading, bool) {
	r.readingMutex.RLock()
	defer r.readingMutex.RUnlock()
	if r.latestReading == nil {
		return types.Reading{}, false
	}
	return *r.latestReading, true
}

// LastPollTime is when the poll that produced the current Reading started.
func (r *MeterReader) LastPollTime() time.Time {
	r.readingMutex.RLock()
	defer r.readingMutex.RUnlock()
	return r.lastPollTime
}

// OnReading registers a handler run in its own goroutine after each accepted Reading.
func (r *MeterReader) OnReading(handler func(reading types.Reading)) {
	r.handlersMutex.Lock()
	r.handlers = append(r.handlers, handler)
	r.handlersMutex.Unlock()
}

func (r *MeterReader) notify(reading types.Reading) {
	r.handlersMutex.RLock()
	defer r.handlersMutex.RUnlock()
	for _, h := range r.handlers {
		go h(reading)
	}
}

func (r *MeterReader) observe(outcome Outcome, exchange time.Duration) {
	if r.observer != nil {
		r.observer.ObservePoll(r.name, outcome, exchange)
	}
}

// checkOutlier compares the cumulative counters against the previous Reading.
// The previous value is the divisor, a zero previous value disables the check.
func checkOutlier(previous, candidate types.Reading) *OutlierError {
	for _, pos := range types.CumulativePositions {
		old, _ := previous.Value(pos)
		next, _ := candidate.Value(pos)
		if old == 0 {
			continue
		}
		if math.Abs(next-old)/math.Abs(old) > MaxRelativeChange {
			return &OutlierError{Position: pos, Previous: old, New: next}
		}
	}
	return nil
}

// OutcomeOf classifies an error returned by Poll.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCommitted
	case errors.Is(err, port_reader.ErrTransport):
		return OutcomeTransportError
	case errors.Is(err, interpreter.ErrFrameShape):
		return OutcomeFrameShapeError
	case errors.Is(err, interpreter.ErrParse):
		return OutcomeParseError
	case errors.Is(err, ErrOutlierRejected):
		return OutcomeOutlierRejected
	}
	return OutcomeTransportError
}
