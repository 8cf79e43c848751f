// Package config loads the daemon configuration from a YAML file and
// fills in defaults for everything the file leaves out.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so the YAML file can carry values like
// "500ms" or "1s"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// Std converts back to the standard library type
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the portod daemon configuration
type Config struct {
	// RPC listen socket
	SocketPath string `yaml:"socket_path"`

	// bbolt database holding container records
	DBPath string `yaml:"db_path"`

	// directory for per-container stdout / stderr files
	LogDir string `yaml:"log_dir"`

	// base of the mounted cgroup v1 hierarchies
	CgroupBase string `yaml:"cgroup_base"`

	// stdout / stderr files above this size are rotated
	RotateCap int64 `yaml:"rotate_cap"`

	// how long Stop waits for SIGTERM to drain the freezer leaf
	StopDrainTimeout Duration `yaml:"stop_drain_timeout"`

	// heartbeat period driving rotation and reconciliation
	HeartbeatPeriod Duration `yaml:"heartbeat_period"`

	// prometheus listen address, empty disables metrics
	MetricsAddr string `yaml:"metrics_addr"`

	// logrus level name
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		SocketPath:       "/run/portod.sock",
		DBPath:           "/var/lib/porto/porto.db",
		LogDir:           "/var/log/porto",
		CgroupBase:       "/sys/fs/cgroup",
		RotateCap:        10 << 20,
		StopDrainTimeout: Duration(time.Second),
		HeartbeatPeriod:  Duration(5 * time.Second),
		MetricsAddr:      "",
		LogLevel:         "info",
	}
}

// Load reads path and merges it over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := c.validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.SocketPath == "" {
		return errors.New("socket_path must not be empty")
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.LogDir == "" {
		return errors.New("log_dir must not be empty")
	}
	if c.RotateCap <= 0 {
		return errors.New("rotate_cap must be positive")
	}
	if c.StopDrainTimeout <= 0 {
		return errors.New("stop_drain_timeout must be positive")
	}
	if c.HeartbeatPeriod <= 0 {
		return errors.New("heartbeat_period must be positive")
	}
	return nil
}
