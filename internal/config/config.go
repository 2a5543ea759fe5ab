package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the full runtime configuration, loaded once at startup and
// re-read on file change.
type Config struct {
	App struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"app"`

	NATS struct {
		URLs           []string      `mapstructure:"urls"`
		MaxReconnects  int           `mapstructure:"max_reconnects"`
		ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	} `mapstructure:"nats"`

	Monitor struct {
		Interval         time.Duration `mapstructure:"interval"`
		ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
		Cooldown         time.Duration `mapstructure:"cooldown"`
		ReportBaseline   bool          `mapstructure:"report_baseline"`
		HistoryPath      string        `mapstructure:"history_path"`
		HistoryRetention time.Duration `mapstructure:"history_retention"`
	} `mapstructure:"monitor"`

	Disk struct {
		Enabled       bool     `mapstructure:"enabled"`
		Mount         string   `mapstructure:"mount"`
		Threshold     float64  `mapstructure:"threshold"`
		DownloadsPath string   `mapstructure:"downloads_path"`
		MinEntrySize  int64    `mapstructure:"min_entry_size"`
		Exclude       []string `mapstructure:"exclude"`
	} `mapstructure:"disk"`

	System struct {
		Enabled       bool    `mapstructure:"enabled"`
		RAMThreshold  float64 `mapstructure:"ram_threshold"`
		SwapThreshold float64 `mapstructure:"swap_threshold"`
		LoadThreshold float64 `mapstructure:"load_threshold"`
	} `mapstructure:"system"`

	Docker struct {
		Enabled bool     `mapstructure:"enabled"`
		Ignore  []string `mapstructure:"ignore"`
	} `mapstructure:"docker"`

	Remote struct {
		Enabled   bool    `mapstructure:"enabled"`
		Name      string  `mapstructure:"name"`
		Host      string  `mapstructure:"host"`
		Port      int     `mapstructure:"port"`
		User      string  `mapstructure:"user"`
		KeyPath   string  `mapstructure:"key_path"`
		Path      string  `mapstructure:"path"`
		Threshold float64 `mapstructure:"threshold"`
	} `mapstructure:"remote"`

	Actions struct {
		AllowedRoots []string      `mapstructure:"allowed_roots"`
		Retention    time.Duration `mapstructure:"retention"`
		MaxPending   int           `mapstructure:"max_pending"`
	} `mapstructure:"actions"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
}

func setDefaults() {
	viper.SetDefault("app.name", "hostwatch")

	viper.SetDefault("nats.urls", []string{"nats://localhost:4222"})
	viper.SetDefault("nats.max_reconnects", 10)
	viper.SetDefault("nats.reconnect_wait", "2s")
	viper.SetDefault("nats.connect_timeout", "5s")

	viper.SetDefault("monitor.interval", "5m")
	viper.SetDefault("monitor.probe_timeout", "30s")
	viper.SetDefault("monitor.cooldown", "1h")
	viper.SetDefault("monitor.report_baseline", true)
	viper.SetDefault("monitor.history_path", "alert_history.db")
	viper.SetDefault("monitor.history_retention", "720h")

	viper.SetDefault("disk.enabled", true)
	viper.SetDefault("disk.mount", "/")
	viper.SetDefault("disk.threshold", 80)
	viper.SetDefault("disk.min_entry_size", 1048576)

	viper.SetDefault("system.enabled", true)
	viper.SetDefault("system.ram_threshold", 90)
	viper.SetDefault("system.swap_threshold", 80)
	viper.SetDefault("system.load_threshold", 8)

	viper.SetDefault("docker.enabled", false)

	viper.SetDefault("remote.enabled", false)
	viper.SetDefault("remote.port", 22)
	viper.SetDefault("remote.threshold", 80)

	viper.SetDefault("actions.retention", "1h")
	viper.SetDefault("actions.max_pending", 256)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.addr", ":9090")
}

// Load reads config from the given directory. A missing config file is not
// an error; defaults cover a bare local setup.
func Load(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return unmarshal()
}

// Watch re-reads the config on file change and hands the result to onChange.
// A reload that fails to parse is logged and dropped; the previous
// configuration stays in effect.
func Watch(logger *zap.Logger, onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", zap.String("file", e.Name))

		cfg, err := unmarshal()
		if err != nil {
			logger.Error("Ignoring invalid config reload", zap.Error(err))
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

func unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
