package config

import "time"

type MeterCollectorConfig struct {
	MeterAPIHost    string `toml:"meter_api_host"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	RetentionMonths int    `toml:"retention_months"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
}

type MeterAPIConfig struct {
	ListenAddress  string  `toml:"listen_address"`
	ListenPort     int     `toml:"listen_port"`
	LogLevel       string  `toml:"log_level"`
	LogFormat      string  `toml:"log_format"`
	RateLimit      float64 `toml:"rate_limit"`
	RateLimitBurst int     `toml:"rate_limit_burst"`

	Meters []MeterConfig `toml:"meters"`

	// Optional, leave url empty to disable.
	Influx InfluxConfig `toml:"influx"`
}

type MeterConfig struct {
	Name         string   `toml:"name"`
	SerialDevice string   `toml:"serial_device"`
	ScanInterval Duration `toml:"scan_interval"`
	// Sensor keys to expose, case-insensitive.
	Resources []string `toml:"resources"`
}

type InfluxConfig struct {
	URL    string `toml:"url"`
	Token  string `toml:"token"`
	Org    string `toml:"org"`
	Bucket string `toml:"bucket"`
}

func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Bucket != ""
}

// Duration reads and writes as a Go duration string, e.g. "60s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
