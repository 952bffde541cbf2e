package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/NotCoffee418/multical401/pkg/pathing"
	"github.com/NotCoffee418/multical401/pkg/sensor"
	"github.com/NotCoffee418/multical401/pkg/types"
)

const (
	DefaultMeterName    = "Multical 401"
	DefaultScanInterval = 60 * time.Second
)

var (
	ActiveMeterAPIConfig       *MeterAPIConfig
	ActiveMeterCollectorConfig *MeterCollectorConfig
)

func DefaultMeterAPIConfig() *MeterAPIConfig {
	return &MeterAPIConfig{
		ListenAddress:  "0.0.0.0",
		ListenPort:     9040,
		LogLevel:       "info",
		LogFormat:      "text",
		RateLimit:      5,
		RateLimitBurst: 10,
		Meters: []MeterConfig{{
			Name:         DefaultMeterName,
			SerialDevice: "/dev/ttyUSB0",
			ScanInterval: Duration{DefaultScanInterval},
			Resources:    append([]string{}, types.SensorKeys...),
		}},
	}
}

func DefaultMeterCollectorConfig() *MeterCollectorConfig {
	return &MeterCollectorConfig{
		MeterAPIHost:    "localhost:9040",
		TLSEnabled:      false,
		RetentionMonths: 3,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

func LoadMeterAPIConfig() error {
	cfg, err := LoadMeterAPIConfigFrom(filepath.Join(pathing.GetConfigDir(), "meter_api.toml"))
	if err != nil {
		return err
	}
	ActiveMeterAPIConfig = cfg
	return nil
}

func LoadMeterCollectorConfig() error {
	cfg, err := LoadMeterCollectorConfigFrom(filepath.Join(pathing.GetConfigDir(), "meter_collector.toml"))
	if err != nil {
		return err
	}
	ActiveMeterCollectorConfig = cfg
	return nil
}

// LoadMeterAPIConfigFrom reads configPath, writing the defaults there first if it does not exist.
func LoadMeterAPIConfigFrom(configPath string) (*MeterAPIConfig, error) {
	cfg := DefaultMeterAPIConfig()
	if fileExists(configPath) {
		// Meters come from the file only, never merged with the default meter.
		cfg.Meters = nil
	}
	if err := loadOrCreate(configPath, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

func LoadMeterCollectorConfigFrom(configPath string) (*MeterCollectorConfig, error) {
	cfg := DefaultMeterCollectorConfig()
	if err := loadOrCreate(configPath, cfg); err != nil {
		return nil, err
	}
	if cfg.MeterAPIHost == "" {
		return nil, fmt.Errorf("invalid config %s: meter_api_host is required", configPath)
	}
	if cfg.RetentionMonths <= 0 {
		cfg.RetentionMonths = 3
	}
	return cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Values present in the file override the defaults already in cfg.
func loadOrCreate(configPath string, cfg any) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		return toml.NewEncoder(cfgFile).Encode(cfg)
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return err
	}
	return nil
}

// Validate fills in per-meter defaults and rejects unusable settings.
func (c *MeterAPIConfig) Validate() error {
	if len(c.Meters) == 0 {
		return errors.New("at least one meter must be configured")
	}

	var errs []error
	seen := map[string]bool{}
	names := map[string]bool{}
	for i := range c.Meters {
		m := &c.Meters[i]
		if m.Name == "" {
			m.Name = DefaultMeterName
		}
		if m.ScanInterval.Duration <= 0 {
			m.ScanInterval = Duration{DefaultScanInterval}
		}
		if len(m.Resources) == 0 {
			m.Resources = append([]string{}, types.SensorKeys...)
		}
		if m.SerialDevice == "" {
			errs = append(errs, fmt.Errorf("meter %q: serial_device is required", m.Name))
		}
		if seen[m.SerialDevice] {
			errs = append(errs, fmt.Errorf("meter %q: serial_device %s is used twice", m.Name, m.SerialDevice))
		}
		seen[m.SerialDevice] = true

		// Names end up in unique ids, which ignore case and spaces.
		id := sensor.UniqueID(m.Name, "")
		if names[id] {
			errs = append(errs, fmt.Errorf("meter %q: name is used twice", m.Name))
		}
		names[id] = true

		resources := make([]string, 0, len(m.Resources))
		keys := map[string]bool{}
		for _, resource := range m.Resources {
			d, ok := types.LookupSensor(resource)
			if !ok {
				errs = append(errs, fmt.Errorf("meter %q: unknown resource %q, expected one of %s",
					m.Name, resource, strings.Join(types.SensorKeys, ", ")))
				continue
			}
			if keys[d.Key] {
				continue
			}
			keys[d.Key] = true
			resources = append(resources, d.Key)
		}
		m.Resources = resources
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("listen_port %d out of range", c.ListenPort))
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 10
	}
	return errors.Join(errs...)
}
