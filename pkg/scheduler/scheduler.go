package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/multical401/pkg/meter_reader"
)

// Cron ticks jitter by a few milliseconds. Ticking slightly later than the
// scan interval keeps a tick from landing inside the reader's throttle window.
const tickSlack = time.Second

// Poller is polled periodically, e.g. a *meter_reader.MeterReader.
type Poller interface {
	Name() string
	ScanInterval() time.Duration
	Poll() error
}

// Scheduler runs every registered job on its own goroutine, so one meter
// waiting on its serial handshake never delays another.
type Scheduler struct {
	logger *logrus.Logger
	cron   *cron.Cron
}

func NewScheduler(logger *logrus.Logger) *Scheduler {
	log := cronLogger{logger.WithField("component", "scheduler")}
	return &Scheduler{
		logger: logger,
		cron: cron.New(
			cron.WithLogger(log),
			cron.WithChain(
				cron.Recover(log),
				cron.SkipIfStillRunning(log),
			),
		),
	}
}

// AddPoller schedules p every scan interval.
func (s *Scheduler) AddPoller(p Poller) error {
	spec := fmt.Sprintf("@every %s", p.ScanInterval()+tickSlack)
	_, err := s.cron.AddFunc(spec, func() { s.poll(p) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", p.Name(), err)
	}
	return nil
}

// AddFunc schedules fn with a standard cron spec.
func (s *Scheduler) AddFunc(spec string, fn func()) error {
	_, err := s.cron.AddFunc(spec, fn)
	return err
}

// Start the scheduler. Pollers are polled once immediately.
func (s *Scheduler) Start(pollers ...Poller) {
	for _, p := range pollers {
		go s.poll(p)
	}
	s.cron.Start()
}

// Stop the scheduler and wait for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) poll(p Poller) {
	if err := p.Poll(); err != nil {
		s.logger.WithFields(logrus.Fields{
			"meter":   p.Name(),
			"outcome": meter_reader.OutcomeOf(err),
		}).Debugf("Poll did not produce a reading: %v", err)
	}
}

// cronLogger sends cron's own logging to logrus. Routine scheduling
// messages go to debug, recovered panics to error.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(cronFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(cronFields(keysAndValues)).WithError(err).Error(msg)
}

func cronFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
