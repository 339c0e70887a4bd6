package config

import (
	"errors"
	"fmt"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

// Validate checks the configuration and repairs what it safely can.
// Malformed retention or thresholds fall back to defaults with a
// warning rather than failing startup; structural problems (ports,
// intervals) are returned as errors.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	if c.AutoStop.Sampling.Frequency <= 0 {
		errs = append(errs, errors.New("auto_stop.sampling.frequency must be positive"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}

	c.repairThresholds()
	c.repairRetention()

	if c.AutoStop.MinDataPoints <= 0 {
		c.AutoStop.MinDataPoints = 3
	}

	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	}
	if c.Storage.CompactThreshold <= 0 {
		c.Storage.CompactThreshold = 100
	}
	if c.Storage.RollupCapDays <= 0 {
		c.Storage.RollupCapDays = 7
	}
	if c.Storage.RawKeepHours <= 0 {
		c.Storage.RawKeepHours = 24
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, errors.New("server.port must be between 1 and 65535"))
		}
	}

	if c.Events.History.Enabled {
		if c.Events.History.Host == "" {
			errs = append(errs, errors.New("events.history.host is required when history is enabled"))
		}
		if c.Events.History.Name == "" {
			errs = append(errs, errors.New("events.history.name is required when history is enabled"))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) repairThresholds() {
	t := &c.AutoStop.Thresholds
	if t.MaxCPUPercent < 0 || t.MaxGPUPercent < 0 || t.MaxMemoryPercent < 0 || t.DurationSeconds <= 0 {
		logger.Warnf("Malformed auto-stop thresholds %+v, falling back to defaults", *t)
		*t = models.Thresholds{
			MaxCPUPercent:    1,
			MaxGPUPercent:    1,
			MaxMemoryPercent: 1,
			DurationSeconds:  3600,
		}
	}
}

func (c *Config) repairRetention() {
	if err := c.Storage.Retention.Validate(); err != nil {
		logger.Warnf("Invalid retention policy (%v), falling back to %s", err, models.DefaultRetention())
		c.Storage.Retention = models.DefaultRetention()
	}
}

// DSN builds the Postgres connection string for the event history sink.
func (h EventHistoryConfig) DSN() string {
	sslMode := h.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		h.Host, h.Port, h.User, h.Password, h.Name, sslMode,
	)
}
