package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      int    `yaml:"ttl_seconds"`
	} `yaml:"redis"`

	API struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Push struct {
		CredentialsPath string `yaml:"credentials_path"`
		ProjectID       string `yaml:"project_id"`
	} `yaml:"push"`

	Email struct {
		SMTPHost string `yaml:"smtp_host"`
		SMTPPort string `yaml:"smtp_port"`
		From     string `yaml:"from"`
	} `yaml:"email"`

	Sweeper struct {
		IntervalMinutes   int `yaml:"interval_minutes"`
		RunTimeoutSeconds int `yaml:"run_timeout_seconds"`
	} `yaml:"sweeper"`

	Reminders struct {
		IntervalMinutes   int `yaml:"interval_minutes"`
		WindowHours       int `yaml:"window_hours"`
		RunTimeoutSeconds int `yaml:"run_timeout_seconds"`
	} `yaml:"reminders"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/nextslot.db"
	}
	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = ":8080"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SweepInterval returns the staleness sweep interval, default 2 hours.
func (c *Config) SweepInterval() time.Duration {
	if c.Sweeper.IntervalMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Sweeper.IntervalMinutes) * time.Minute
}

// SweepRunTimeout returns the per-run budget, default 300 seconds.
func (c *Config) SweepRunTimeout() time.Duration {
	if c.Sweeper.RunTimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.Sweeper.RunTimeoutSeconds) * time.Second
}

// ReminderInterval returns the reminder sweep interval, default 1 hour.
func (c *Config) ReminderInterval() time.Duration {
	if c.Reminders.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Reminders.IntervalMinutes) * time.Minute
}

// ReminderWindow returns the look-ahead window, default 25 hours.
func (c *Config) ReminderWindow() time.Duration {
	if c.Reminders.WindowHours <= 0 {
		return 25 * time.Hour
	}
	return time.Duration(c.Reminders.WindowHours) * time.Hour
}

// ReminderRunTimeout returns the per-run budget, default 300 seconds.
func (c *Config) ReminderRunTimeout() time.Duration {
	if c.Reminders.RunTimeoutSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.Reminders.RunTimeoutSeconds) * time.Second
}

// RedisTTL returns the cache TTL for public availability reads.
func (c *Config) RedisTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.TTL) * time.Second
}
