package meter_reader

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotCoffee418/multical401/pkg/interpreter"
	"github.com/NotCoffee418/multical401/pkg/port_reader"
	"github.com/NotCoffee418/multical401/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSession replays queued replies, one per exchange.
type fakeSession struct {
	mu      sync.Mutex
	replies [][]byte
	errs    []error
	calls   int
	paths   []string
}

func (s *fakeSession) queue(raw []byte, err error) {
	s.mu.Lock()
	s.replies = append(s.replies, raw)
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *fakeSession) Exchange(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.paths = append(s.paths, path)
	if len(s.replies) == 0 {
		return nil, errors.New("no reply queued")
	}
	raw, err := s.replies[0], s.errs[0]
	s.replies, s.errs = s.replies[1:], s.errs[1:]
	return raw, err
}

func (s *fakeSession) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (o *recordingObserver) ObservePoll(meter string, outcome Outcome, exchange time.Duration) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

var sampleFields = []string{
	"0001234", "0005678", "0000100", "0002000", "0002500",
	"0000500", "0000100", "0000050", "0000060", "0000000",
}

func frame(fields ...string) []byte {
	return []byte(strings.Join(fields, " ") + "\r\n")
}

// frameWithEnergy builds a valid frame whose energy field is gj.
func frameWithEnergy(gj float64) []byte {
	fields := append([]string{}, sampleFields...)
	fields[0] = fmt.Sprintf("%07d", int64(gj*1000))
	return frame(fields...)
}

func newTestReader(t *testing.T) (*MeterReader, *fakeSession, *fakeClock, *recordingObserver) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	session := &fakeSession{}
	clock := &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	observer := &recordingObserver{}

	reader := New(session, Options{
		Name:     "Multical 401",
		Path:     "/dev/ttyUSB0",
		Clock:    clock,
		Logger:   logger,
		Observer: observer,
	})
	return reader, session, clock, observer
}

func TestPollCommitsScaledReading(t *testing.T) {
	reader, session, clock, observer := newTestReader(t)
	session.queue(frame(sampleFields...), nil)

	_, ok := reader.Current()
	assert.False(t, ok)

	require.NoError(t, reader.Poll())

	reading, ok := reader.Current()
	require.True(t, ok)
	assert.Equal(t, types.Reading{
		Timestamp:          clock.Now(),
		EnergyGJ:           1.234,
		GasEquivalentM3:    40.327,
		VolumeM3:           56.78,
		OperatingHours:     100,
		TemperatureSupplyC: 20,
		TemperatureReturnC: 25,
		TemperatureDeltaC:  5,
		PowerKW:            10,
		FlowLPH:            50,
		PeakFlowLPH:        60,
		InfoCode:           0,
	}, reading)
	assert.Equal(t, clock.Now(), reader.LastPollTime())
	assert.Equal(t, []string{"/dev/ttyUSB0"}, session.paths)
	assert.Equal(t, []Outcome{OutcomeCommitted}, observer.outcomes)

	// Current is stable without another poll.
	again, ok := reader.Current()
	require.True(t, ok)
	assert.Equal(t, reading, again)
}

func TestPollDiscardsInvalidFrames(t *testing.T) {
	eleven := append(append([]string{}, sampleFields...), "0000001")
	short := append([]string{}, sampleFields...)
	short[3] = "002000"
	long := append([]string{}, sampleFields...)
	long[3] = "00002000"
	nonNumeric := append([]string{}, sampleFields...)
	nonNumeric[9] = "00000a0"

	tests := []struct {
		name    string
		raw     []byte
		err     error
		outcome Outcome
	}{
		{"nine fields", frame(sampleFields[:9]...), interpreter.ErrFrameShape, OutcomeFrameShapeError},
		{"eleven fields", frame(eleven...), interpreter.ErrFrameShape, OutcomeFrameShapeError},
		{"six byte field", frame(short...), interpreter.ErrFrameShape, OutcomeFrameShapeError},
		{"eight byte field", frame(long...), interpreter.ErrFrameShape, OutcomeFrameShapeError},
		{"non numeric field", frame(nonNumeric...), interpreter.ErrParse, OutcomeParseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, session, clock, observer := newTestReader(t)
			session.queue(frame(sampleFields...), nil)
			require.NoError(t, reader.Poll())
			before, _ := reader.Current()
			beforePoll := reader.LastPollTime()

			clock.Advance(DefaultScanInterval)
			session.queue(tt.raw, nil)
			err := reader.Poll()
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.outcome, OutcomeOf(err))

			after, ok := reader.Current()
			require.True(t, ok)
			assert.Equal(t, before, after)
			assert.Equal(t, beforePoll, reader.LastPollTime())
			assert.Equal(t, []Outcome{OutcomeCommitted, tt.outcome}, observer.outcomes)
		})
	}
}

func TestPollKeepsAbsentReadingOnFailure(t *testing.T) {
	reader, session, _, _ := newTestReader(t)
	session.queue(frame(sampleFields[:9]...), nil)

	assert.Error(t, reader.Poll())
	_, ok := reader.Current()
	assert.False(t, ok)
	assert.True(t, reader.LastPollTime().IsZero())
}

func TestPollTransportError(t *testing.T) {
	reader, session, _, observer := newTestReader(t)
	session.queue(nil, &port_reader.TransportError{
		Kind: port_reader.OpenFailed,
		Path: "/dev/ttyUSB0",
		Op:   "open",
		Err:  errors.New("permission denied"),
	})

	err := reader.Poll()
	assert.ErrorIs(t, err, port_reader.ErrTransport)
	assert.Equal(t, OutcomeTransportError, OutcomeOf(err))
	assert.Equal(t, []Outcome{OutcomeTransportError}, observer.outcomes)

	_, ok := reader.Current()
	assert.False(t, ok)
}

func TestPollOutlierPolicy(t *testing.T) {
	tests := []struct {
		name      string
		previous  float64
		next      float64
		committed bool
	}{
		{"more than double is rejected", 10.0, 25.0, false},
		{"fifty percent rise commits", 10.0, 15.0, true},
		{"exactly double commits", 10.0, 20.0, true},
		{"drop to near zero commits", 10.0, 0.001, true},
		{"rise from zero commits", 0, 25.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, session, clock, _ := newTestReader(t)
			session.queue(frameWithEnergy(tt.previous), nil)
			require.NoError(t, reader.Poll())

			clock.Advance(DefaultScanInterval)
			session.queue(frameWithEnergy(tt.next), nil)
			err := reader.Poll()

			current, ok := reader.Current()
			require.True(t, ok)
			if tt.committed {
				assert.NoError(t, err)
				assert.Equal(t, tt.next, current.EnergyGJ)
			} else {
				assert.ErrorIs(t, err, ErrOutlierRejected)
				assert.Equal(t, tt.previous, current.EnergyGJ)
				var outlierErr *OutlierError
				require.ErrorAs(t, err, &outlierErr)
				assert.Equal(t, types.PosEnergy, outlierErr.Position)
			}
		})
	}
}

func TestPollRejectsVolumeOutlierAsWholeReading(t *testing.T) {
	reader, session, clock, _ := newTestReader(t)
	session.queue(frame(sampleFields...), nil)
	require.NoError(t, reader.Poll())

	fields := append([]string{}, sampleFields...)
	fields[1] = "0015000" // volume 56.78 -> 150.00
	fields[3] = "0009000" // supply temperature would change too
	clock.Advance(DefaultScanInterval)
	session.queue(frame(fields...), nil)

	err := reader.Poll()
	var outlierErr *OutlierError
	require.ErrorAs(t, err, &outlierErr)
	assert.Equal(t, types.PosVolume, outlierErr.Position)

	current, _ := reader.Current()
	assert.Equal(t, 56.78, current.VolumeM3)
	assert.Equal(t, 20.0, current.TemperatureSupplyC)
}

func TestPollThrottle(t *testing.T) {
	reader, session, clock, observer := newTestReader(t)
	session.queue(frame(sampleFields...), nil)
	session.queue(frame(sampleFields...), nil)

	require.NoError(t, reader.Poll())
	require.NoError(t, reader.Poll())
	assert.Equal(t, 1, session.Calls())

	clock.Advance(DefaultScanInterval - time.Second)
	require.NoError(t, reader.Poll())
	assert.Equal(t, 1, session.Calls())

	clock.Advance(time.Second)
	require.NoError(t, reader.Poll())
	assert.Equal(t, 2, session.Calls())

	assert.Equal(t, []Outcome{OutcomeCommitted, OutcomeThrottled, OutcomeThrottled, OutcomeCommitted}, observer.outcomes)
}

func TestPollRetriesAfterFailedExchange(t *testing.T) {
	reader, session, clock, observer := newTestReader(t)
	session.queue(nil, &port_reader.TransportError{Kind: port_reader.OpenFailed, Op: "open", Err: errors.New("no such device")})
	session.queue([]byte("garbage"), nil)
	session.queue(frame(sampleFields...), nil)

	assert.Error(t, reader.Poll())
	assert.True(t, reader.LastPollTime().IsZero())

	clock.Advance(5 * time.Second)
	assert.Error(t, reader.Poll())
	assert.True(t, reader.LastPollTime().IsZero())

	clock.Advance(5 * time.Second)
	require.NoError(t, reader.Poll())
	assert.Equal(t, 3, session.Calls())
	assert.Equal(t, clock.Now(), reader.LastPollTime())
	_, ok := reader.Current()
	assert.True(t, ok)

	// Committed now, so the next call inside the interval is throttled.
	clock.Advance(5 * time.Second)
	require.NoError(t, reader.Poll())
	assert.Equal(t, 3, session.Calls())
	assert.Equal(t, []Outcome{
		OutcomeTransportError, OutcomeFrameShapeError, OutcomeCommitted, OutcomeThrottled,
	}, observer.outcomes)
}

func TestPollRetriesAfterOutlierRejection(t *testing.T) {
	reader, session, clock, _ := newTestReader(t)
	session.queue(frameWithEnergy(10), nil)
	session.queue(frameWithEnergy(100), nil)
	session.queue(frameWithEnergy(11), nil)

	require.NoError(t, reader.Poll())
	committedAt := reader.LastPollTime()

	clock.Advance(DefaultScanInterval)
	assert.ErrorIs(t, reader.Poll(), ErrOutlierRejected)
	assert.Equal(t, committedAt, reader.LastPollTime())

	clock.Advance(time.Second)
	require.NoError(t, reader.Poll())
	assert.Equal(t, 3, session.Calls())
	current, _ := reader.Current()
	assert.Equal(t, 11.0, current.EnergyGJ)
}

func TestPollConcurrentCallersShareOneExchange(t *testing.T) {
	reader, session, _, _ := newTestReader(t)
	for i := 0; i < 10; i++ {
		session.queue(frame(sampleFields...), nil)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reader.Poll()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, session.Calls())
	_, ok := reader.Current()
	assert.True(t, ok)
}

func TestOnReadingHandlers(t *testing.T) {
	reader, session, _, _ := newTestReader(t)
	session.queue(frame(sampleFields...), nil)

	got := make(chan types.Reading, 1)
	reader.OnReading(func(r types.Reading) { got <- r })

	require.NoError(t, reader.Poll())
	select {
	case r := <-got:
		assert.Equal(t, 1.234, r.EnergyGJ)
	case <-time.After(time.Second):
		require.FailNow(t, "handler not called")
	}
}

func TestNewDefaults(t *testing.T) {
	reader := New(&fakeSession{}, Options{Path: "/dev/ttyUSB1"})
	assert.Equal(t, DefaultScanInterval, reader.ScanInterval())
	assert.Equal(t, "/dev/ttyUSB1", reader.Name())
	assert.Equal(t, "/dev/ttyUSB1", reader.Path())
}
