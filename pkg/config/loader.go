package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/runpod-monitor")
	}

	v.SetEnvPrefix("RUNPOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// RUNPOD_API_KEY is the documented way to supply the key; it maps
	// onto api.key through the env replacer above.
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "runpod-idle-pod-monitor")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	// API defaults. The empty key default makes viper bind RUNPOD_API_KEY
	// through AutomaticEnv; env-only keys are invisible to Unmarshal.
	v.SetDefault("api.key", "")
	v.SetDefault("api.graphql_url", "https://api.runpod.io/graphql")
	v.SetDefault("api.rest_url", "https://rest.runpod.io/v1")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.retry_attempts", 3)
	v.SetDefault("api.circuit_breaker.max_failures", 5)
	v.SetDefault("api.circuit_breaker.timeout", "60s")

	// Auto-stop defaults: monitor-only, nothing gets stopped until the
	// operator opts in.
	v.SetDefault("auto_stop.enabled", false)
	v.SetDefault("auto_stop.monitor_only", true)
	v.SetDefault("auto_stop.sampling.frequency", "60s")
	v.SetDefault("auto_stop.sampling.rolling_window", "1h")
	v.SetDefault("auto_stop.thresholds.max_cpu_percent", 1.0)
	v.SetDefault("auto_stop.thresholds.max_gpu_percent", 1.0)
	v.SetDefault("auto_stop.thresholds.max_memory_percent", 1.0)
	v.SetDefault("auto_stop.thresholds.duration", 3600)
	v.SetDefault("auto_stop.thresholds.detect_no_change", false)
	v.SetDefault("auto_stop.min_data_points", 3)

	// Storage defaults
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.metrics_file", "pod_metrics.jsonl")
	v.SetDefault("storage.retention.value", 30)
	v.SetDefault("storage.retention.unit", "days")
	v.SetDefault("storage.compact_threshold", 100)
	v.SetDefault("storage.rollup_cap_days", 7)
	v.SetDefault("storage.raw_keep_hours", 24)
	v.SetDefault("storage.stale_counter_age", "2h")
	v.SetDefault("storage.cost_cache_file", "pod_cost_cache.db")

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.jwt_duration", "24h")

	// Events defaults
	v.SetDefault("events.buffer_size", 100)
	v.SetDefault("events.history.enabled", false)
	v.SetDefault("events.history.port", 5432)
	v.SetDefault("events.history.ssl_mode", "disable")

	// Prometheus defaults
	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.port", 9090)

	// Background job schedules
	v.SetDefault("schedules.retention_sweep", "0 * * * *")
	v.SetDefault("schedules.compaction", "*/10 * * * *")
	v.SetDefault("schedules.stale_cleanup", "30 * * * *")
}
