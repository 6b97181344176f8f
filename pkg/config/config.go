// Package config loads and validates the wall controller's YAML
// configuration file.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"wallctl-go/pkg/errors"
)

// Duration is a time.Duration that decodes YAML strings like "5s" or
// "500ms" (and bare integers as nanoseconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		v, perr := time.ParseDuration(s)
		if perr != nil {
			return perr
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults applied by Load when the file leaves a field unset.
const (
	DefaultPort             = 9923
	DefaultDialTimeout      = 5 * time.Second
	DefaultHandshakeTimeout = 7 * time.Second
	DefaultRequestTimeout   = 7 * time.Second
	DefaultRefreshTimeout   = 30 * time.Second
	DefaultReconnectDelay   = 2 * time.Second
	DefaultFailureDelay     = 15 * time.Second
)

// DeviceConfig describes the wall device endpoint and protocol timing.
type DeviceConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	DialTimeout      Duration `yaml:"dial_timeout"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	RequestTimeout   Duration `yaml:"request_timeout"`
	RefreshTimeout   Duration `yaml:"refresh_timeout"`

	// TCP_USER_TIMEOUT; zero leaves the kernel default.
	UserTimeout Duration `yaml:"user_timeout"`

	// Protocol versions offered in the handshake, newest last.
	SupportedVersions []int `yaml:"supported_versions"`
}

// ReconnectConfig tunes the reconnect driver.
type ReconnectConfig struct {
	// Delay before redialing after a clean disconnect.
	Delay Duration `yaml:"delay"`
	// Delay after a handshake-level failure. Kept long so a
	// misbehaving server is not hammered.
	FailureDelay Duration `yaml:"failure_delay"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen address, e.g. ":9090". Empty disables the endpoint.
	Addr string `yaml:"addr"`

	// Optional basic auth for the scrape endpoint.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// GatewayConfig configures the HTTP/WebSocket gateway.
type GatewayConfig struct {
	// Listen address, e.g. ":7020". Empty disables the gateway.
	Addr string `yaml:"addr"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the root of the YAML document.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns a config with all defaults applied and no host set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Device.Port == 0 {
		c.Device.Port = DefaultPort
	}
	if c.Device.DialTimeout == 0 {
		c.Device.DialTimeout = Duration(DefaultDialTimeout)
	}
	if c.Device.HandshakeTimeout == 0 {
		c.Device.HandshakeTimeout = Duration(DefaultHandshakeTimeout)
	}
	if c.Device.RequestTimeout == 0 {
		c.Device.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if c.Device.RefreshTimeout == 0 {
		c.Device.RefreshTimeout = Duration(DefaultRefreshTimeout)
	}
	if len(c.Device.SupportedVersions) == 0 {
		c.Device.SupportedVersions = []int{1, 2}
	}
	if c.Reconnect.Delay == 0 {
		c.Reconnect.Delay = Duration(DefaultReconnectDelay)
	}
	if c.Reconnect.FailureDelay == 0 {
		c.Reconnect.FailureDelay = Duration(DefaultFailureDelay)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.Device.Host == "" {
		return errors.ConfigError("device.host", "must be set")
	}
	if c.Device.Port <= 0 || c.Device.Port > 65535 {
		return errors.ConfigError("device.port", fmt.Sprintf("invalid port %d", c.Device.Port))
	}
	for _, v := range c.Device.SupportedVersions {
		if v <= 0 {
			return errors.ConfigError("device.supported_versions",
				fmt.Sprintf("invalid protocol version %d", v))
		}
	}
	if (c.Metrics.Username == "") != (c.Metrics.Password == "") {
		return errors.ConfigError("metrics", "username and password must be set together")
	}
	return nil
}

// Load reads the YAML file at path and applies defaults. Callers run
// Validate once command-line overrides have been merged in.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigError(path, err.Error())
	}
	return Parse(data)
}

// Parse decodes a YAML document and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.ConfigError("yaml", err.Error())
	}

	cfg.applyDefaults()
	return cfg, nil
}
