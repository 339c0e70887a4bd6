package config

import (
	"time"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	API        APIConfig        `mapstructure:"api"`
	AutoStop   AutoStopConfig   `mapstructure:"auto_stop"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
	Events     EventsConfig     `mapstructure:"events"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Schedules  SchedulesConfig  `mapstructure:"schedules"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// APIConfig points at the RunPod API. The key is normally injected via
// RUNPOD_API_KEY rather than written into the config file.
type APIConfig struct {
	Key           string        `mapstructure:"key"`
	GraphQLURL    string        `mapstructure:"graphql_url"`
	RestURL       string        `mapstructure:"rest_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`

	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type AutoStopConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	MonitorOnly bool              `mapstructure:"monitor_only"`
	Sampling    SamplingConfig    `mapstructure:"sampling"`
	Thresholds  models.Thresholds `mapstructure:"thresholds"`

	// MinDataPoints guards the wall-clock duration check against a
	// too-short sampling history (e.g. one big gap between two samples).
	MinDataPoints int      `mapstructure:"min_data_points"`
	ExcludePods   []string `mapstructure:"exclude_pods"`
	IncludePods   []string `mapstructure:"include_pods"`
}

type SamplingConfig struct {
	Frequency     time.Duration `mapstructure:"frequency"`
	RollingWindow time.Duration `mapstructure:"rolling_window"`
}

type StorageConfig struct {
	DataDir     string                 `mapstructure:"data_dir"`
	MetricsFile string                 `mapstructure:"metrics_file"`
	Retention   models.RetentionPolicy `mapstructure:"retention"`

	// CompactThreshold is the raw-sample count at which a pod's shard
	// is rolled up; RollupCapDays bounds how much compacted history is
	// kept at each resolution. RawKeepHours is how much raw history the
	// scheduled compaction pass keeps once samples are rolled up.
	CompactThreshold int `mapstructure:"compact_threshold"`
	RollupCapDays    int `mapstructure:"rollup_cap_days"`
	RawKeepHours     int `mapstructure:"raw_keep_hours"`

	StaleCounterAge time.Duration `mapstructure:"stale_counter_age"`

	CostCacheFile string `mapstructure:"cost_cache_file"`
}

type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	JWTSecret   string        `mapstructure:"jwt_secret"`
	JWTDuration time.Duration `mapstructure:"jwt_duration"`

	// AdminUser/AdminPasswordHash protect the dashboard when set; the
	// hash is bcrypt.
	AdminUser         string `mapstructure:"admin_user"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
}

type EventsConfig struct {
	BufferSize int                `mapstructure:"buffer_size"`
	History    EventHistoryConfig `mapstructure:"history"`
}

// EventHistoryConfig enables the optional Postgres audit trail of stop
// actions and alerts.
type EventHistoryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SchedulesConfig holds cron specs for the background maintenance jobs.
type SchedulesConfig struct {
	RetentionSweep string `mapstructure:"retention_sweep"`
	Compaction     string `mapstructure:"compaction"`
	StaleCleanup   string `mapstructure:"stale_cleanup"`
}
