package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Timezone   string           `yaml:"timezone"`
	Policy     PolicyConfig     `yaml:"policy"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	Events     EventsConfig     `yaml:"events"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Sweep      SweepConfig      `yaml:"sweep"`
}

// PolicyConfig holds the reservation policy values. The two no-show
// thresholds differ on purpose: the interactive check is an admin override
// for an obviously absent customer, the batch sweep is the safety net and
// allows more slack.
type PolicyConfig struct {
	AdvanceNoticeHours       int           `yaml:"advance_notice_hours"`
	InteractiveNoShowMinutes int           `yaml:"interactive_no_show_minutes"`
	BatchNoShowMinutes       int           `yaml:"batch_no_show_minutes"`
	DayBoundaryHour          int           `yaml:"day_boundary_hour"`
	DeviceCacheTTLSeconds    int           `yaml:"device_cache_ttl_seconds"`
	AdvanceNotice            time.Duration `yaml:"-"`
	InteractiveNoShowGrace   time.Duration `yaml:"-"`
	BatchNoShowGrace         time.Duration `yaml:"-"`
	DeviceCacheTTL           time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
}

// EventsConfig holds the AMQP configuration: outbound lifecycle events and
// the inbound command queue.
type EventsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Queue        string `yaml:"queue"`
	CommandQueue string `yaml:"command_queue"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// SweepConfig controls the daily no-show sweep scheduler.
type SweepConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Seoul"
	}

	if cfg.Policy.AdvanceNoticeHours <= 0 {
		cfg.Policy.AdvanceNoticeHours = 24
	}
	if cfg.Policy.InteractiveNoShowMinutes <= 0 {
		cfg.Policy.InteractiveNoShowMinutes = 30
	}
	if cfg.Policy.BatchNoShowMinutes <= 0 {
		cfg.Policy.BatchNoShowMinutes = 60
	}
	if cfg.Policy.DayBoundaryHour <= 0 || cfg.Policy.DayBoundaryHour > 12 {
		cfg.Policy.DayBoundaryHour = 5
	}
	if cfg.Policy.DeviceCacheTTLSeconds <= 0 {
		cfg.Policy.DeviceCacheTTLSeconds = 60
	}
	cfg.Policy.AdvanceNotice = time.Duration(cfg.Policy.AdvanceNoticeHours) * time.Hour
	cfg.Policy.InteractiveNoShowGrace = time.Duration(cfg.Policy.InteractiveNoShowMinutes) * time.Minute
	cfg.Policy.BatchNoShowGrace = time.Duration(cfg.Policy.BatchNoShowMinutes) * time.Minute
	cfg.Policy.DeviceCacheTTL = time.Duration(cfg.Policy.DeviceCacheTTLSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.Push.RatePerSec <= 0 {
		cfg.Push.RatePerSec = 10
	}
	if cfg.Push.Burst <= 0 {
		cfg.Push.Burst = 20
	}

	if cfg.Events.Queue == "" {
		cfg.Events.Queue = "reservation.events"
	}
	if cfg.Events.CommandQueue == "" {
		cfg.Events.CommandQueue = "reservation.commands"
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
