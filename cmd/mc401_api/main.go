// Meter API polls the Multical 401 heat meters and serves their readings.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/multical401/pkg/config"
	"github.com/NotCoffee418/multical401/pkg/influxsink"
	"github.com/NotCoffee418/multical401/pkg/logging"
	"github.com/NotCoffee418/multical401/pkg/meter_reader"
	"github.com/NotCoffee418/multical401/pkg/metrics"
	"github.com/NotCoffee418/multical401/pkg/pathing"
	"github.com/NotCoffee418/multical401/pkg/port_reader"
	"github.com/NotCoffee418/multical401/pkg/scheduler"
	"github.com/NotCoffee418/multical401/pkg/sensor"
	"github.com/NotCoffee418/multical401/pkg/types"
	"github.com/NotCoffee418/multical401/pkg/webapi"
)

func main() {
	// Optional, environment variables already set win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load .env: %v", err)
	}

	if err := pathing.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}
	if err := config.LoadMeterAPIConfig(); err != nil {
		log.Fatalf("Failed to load meter API config: %v", err)
	}
	cfg := config.ActiveMeterAPIConfig

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	exporter := metrics.NewExporter()
	if err := exporter.Register(registry); err != nil {
		logger.Fatalf("Failed to register metrics: %v", err)
	}

	session := port_reader.NewSession(logger)
	var readers []*meter_reader.MeterReader
	var meters []webapi.Meter
	var entities []*sensor.Entity
	for _, m := range cfg.Meters {
		reader := meter_reader.New(session, meter_reader.Options{
			Name:         m.Name,
			Path:         m.SerialDevice,
			ScanInterval: m.ScanInterval.Duration,
			Logger:       logger,
			Observer:     exporter,
		})
		readers = append(readers, reader)
		meters = append(meters, reader)

		meterEntities := sensor.NewEntities(m.Name, reader, m.Resources, logger)
		exporter.AddEntities(meterEntities...)
		entities = append(entities, meterEntities...)
	}

	server := webapi.NewServer(meters, entities, registry, webapi.Config{
		RateLimit:      cfg.RateLimit,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	var influx *influxsink.Writer
	if cfg.Influx.Enabled() {
		token := cfg.Influx.Token
		if token == "" {
			token = os.Getenv("INFLUX_TOKEN")
		}
		influx = influxsink.New(cfg.Influx.URL, token, cfg.Influx.Org, cfg.Influx.Bucket, logger)
		logger.WithField("url", cfg.Influx.URL).Info("Writing readings to InfluxDB")
	}

	for _, reader := range readers {
		name := reader.Name()
		reader.OnReading(func(reading types.Reading) {
			server.Broadcast(name, reading)
			if influx != nil {
				influx.Write(name, reading)
			}
		})
	}

	sched := scheduler.NewScheduler(logger)
	pollers := make([]scheduler.Poller, 0, len(readers))
	for _, reader := range readers {
		if err := sched.AddPoller(reader); err != nil {
			logger.Fatal(err)
		}
		pollers = append(pollers, reader)
		logger.WithFields(logrus.Fields{
			"meter":         reader.Name(),
			"serial_device": reader.Path(),
			"scan_interval": reader.ScanInterval(),
		}).Info("Polling meter")
	}
	sched.Start(pollers...)

	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	srv := &http.Server{
		Addr:              listener,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting Multical 401 Meter API on %s", listener)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP shutdown: %v", err)
	}
	sched.Stop()
	if influx != nil {
		influx.Close()
	}
}
