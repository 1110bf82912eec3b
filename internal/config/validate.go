package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/randomizedcoder/go-forge-runner/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the options of a test run. It returns every problem
// found, joined.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !slices.Contains(Modes(), cfg.RunnerMode) {
		add("forge_runner_mode", "must be one of: %s (got %q)", strings.Join(Modes(), ", "), cfg.RunnerMode)
	}
	if cfg.TestSuite == "" {
		add("forge_test_suite", "is required")
	}
	if cfg.RunnerDurationSecs < 1 {
		add("forge_runner_duration_secs", "must be at least 1")
	}
	if cfg.NumValidators < 0 {
		add("forge_num_validators", "must not be negative")
	}
	if cfg.NumValidatorFullnodes < 0 {
		add("forge_num_validator_fullnodes", "must not be negative")
	}
	if cfg.EnableFailpoints && cfg.EnablePerformance {
		add("forge_enable_failpoints", "cannot be combined with forge_enable_performance")
	}
	if cfg.AWSRegion == "" {
		add("aws_region", "is required")
	}
	if cfg.PollAttempts < 1 {
		add("poll_attempts", "must be at least 1")
	}
	if cfg.PollInterval < 0 {
		add("poll_interval", "must not be negative")
	}
	if cfg.ReadyTimeout <= 0 {
		add("ready_timeout", "must be positive")
	}

	errs = append(errs, validateObservability(cfg)...)
	return errors.Join(errs...)
}

// ValidateGlobal checks the options shared by every command.
func ValidateGlobal(cfg *Config) error {
	return errors.Join(validateObservability(cfg)...)
}

func validateObservability(cfg *Config) []error {
	var errs []error
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{Field: "log_format", Message: fmt.Sprintf("must be json or text (got %q)", cfg.LogFormat)})
	}
	if !logging.ValidLevel(cfg.LogLevel) {
		errs = append(errs, ValidationError{Field: "log_level", Message: fmt.Sprintf("unknown level %q", cfg.LogLevel)})
	}
	if cfg.TraceSampleRate < 0 || cfg.TraceSampleRate > 1 {
		errs = append(errs, ValidationError{Field: "trace_sample_rate", Message: "must be between 0 and 1"})
	}
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{Field: "metrics_addr", Message: err.Error()})
		}
	}
	return errs
}
