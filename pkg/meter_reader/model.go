package meter_reader

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/multical401/pkg/types"
)

const DefaultScanInterval = 60 * time.Second

// A cumulative counter moving by more than this fraction of its previous
// value between two polls is treated as a line glitch.
const MaxRelativeChange = 1.0

var ErrOutlierRejected = errors.New("reading rejected as outlier")

type OutlierError struct {
	Position int
	Previous float64
	New      float64
}

func (e *OutlierError) Error() string {
	return fmt.Sprintf("position %d changed from %v to %v", e.Position, e.Previous, e.New)
}

func (e *OutlierError) Is(target error) bool { return target == ErrOutlierRejected }

// Exchanger performs one request/response exchange with a meter.
type Exchanger interface {
	Exchange(path string) ([]byte, error)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Outcome string

const (
	OutcomeCommitted       Outcome = "committed"
	OutcomeThrottled       Outcome = "throttled"
	OutcomeTransportError  Outcome = "transport_error"
	OutcomeFrameShapeError Outcome = "frame_shape_error"
	OutcomeParseError      Outcome = "parse_error"
	OutcomeOutlierRejected Outcome = "outlier_rejected"
)

// Observer is told about every Poll, e.g. to export metrics.
type Observer interface {
	ObservePoll(meter string, outcome Outcome, exchange time.Duration)
}

type Options struct {
	// Name identifies the meter in logs and to observers.
	Name         string
	Path         string
	ScanInterval time.Duration
	Clock        Clock
	Logger       *logrus.Logger
	Observer     Observer
}

// MeterReader polls one meter and keeps its last accepted Reading.
type MeterReader struct {
	name         string
	path         string
	scanInterval time.Duration
	session      Exchanger
	clock        Clock
	logger       *logrus.Entry
	observer     Observer

	// pollMutex serializes complete polls so the device is never shared.
	pollMutex sync.Mutex

	readingMutex  sync.RWMutex
	latestReading *types.Reading
	// Start of the last committed poll. Failed polls leave it alone.
	lastPollTime time.Time

	handlersMutex sync.RWMutex
	handlers      []func(reading types.Reading)
}
