// Responsible for storing the readings broadcast by the meter API.
// Depends on the meter API being online.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/multical401/pkg/aggregator"
	"github.com/NotCoffee418/multical401/pkg/config"
	"github.com/NotCoffee418/multical401/pkg/interpreter"
	"github.com/NotCoffee418/multical401/pkg/logging"
	"github.com/NotCoffee418/multical401/pkg/meterdb"
	"github.com/NotCoffee418/multical401/pkg/pathing"
	"github.com/NotCoffee418/multical401/pkg/scheduler"
	"github.com/NotCoffee418/multical401/pkg/types"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load .env: %v", err)
	}

	if err := pathing.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}
	if err := config.LoadMeterCollectorConfig(); err != nil {
		log.Fatalf("Failed to load meter collector config: %v", err)
	}
	cfg := config.ActiveMeterCollectorConfig

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	// Initialize database
	if err := meterdb.InitializeDatabase(pathing.GetMeterDbPath()); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer meterdb.Close()

	// Snapshot the previous hour a few minutes after it ends
	sched := scheduler.NewScheduler(logger)
	err = sched.AddFunc("5 * * * *", func() {
		if _, err := aggregator.AggregateAndCleanup(time.Now(), cfg.RetentionMonths, logger); err != nil {
			logger.Errorf("Aggregation failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule aggregation: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subscribe to websocket with revive
	interpreter.StartListener(ctx, cfg.MeterAPIHost, cfg.TLSEnabled, logger, func(msg *types.MeterReadingMessage) {
		handleMeterReading(logger, msg)
	})
}

func handleMeterReading(logger *logrus.Logger, msg *types.MeterReadingMessage) {
	if err := meterdb.InsertReading(meterdb.FromReading(msg.Meter, msg.Reading)); err != nil {
		logger.WithField("meter", msg.Meter).Errorf("Failed to store reading: %v", err)
		return
	}
	logger.WithFields(logrus.Fields{
		"meter":     msg.Meter,
		"timestamp": msg.Reading.Timestamp,
	}).Debug("Stored reading")
}
