package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/randomizedcoder/go-forge-runner/internal/runner"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RunnerMode != runner.ModeK8s || cfg.TestSuite != "land_blocking" || cfg.RunnerDurationSecs != 300 {
		t.Errorf("run defaults = %+v", cfg)
	}
	if !cfg.Blocking || cfg.AWSRegion != "us-west-2" {
		t.Errorf("blocking=%t region=%q", cfg.Blocking, cfg.AWSRegion)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestDefaultConfig_Interactive(t *testing.T) {
	orig := stdinIsTerminal
	t.Cleanup(func() { stdinIsTerminal = orig })

	for _, tty := range []bool{true, false} {
		stdinIsTerminal = func() bool { return tty }
		if got := DefaultConfig().Interactive; got != tty {
			t.Errorf("Interactive with terminal=%t = %t", tty, got)
		}
	}
}

func TestLoadEnv(t *testing.T) {
	t.Run("overrides", func(t *testing.T) {
		cfg := DefaultConfig()
		err := LoadEnv(cfg, map[string]string{
			"FORGE_RUNNER_MODE":          "local",
			"FORGE_NUM_VALIDATORS":       "20",
			"FORGE_NAMESPACE_KEEP":       "true",
			"FORGE_BLOCKING":             "false",
			"FORGE_POLL_INTERVAL":        "2s",
			"IMAGE_TAG":                  "abc",
			"GITHUB_ACTIONS":             "true",
			"FORGE_RUNNER_DURATION_SECS": "",
		})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.RunnerMode != "local" || cfg.NumValidators != 20 || !cfg.NamespaceKeep || cfg.Blocking {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.PollInterval != 2*time.Second || cfg.ImageTag != "abc" || !cfg.GithubActions {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.RunnerDurationSecs != 300 {
			t.Errorf("empty variable replaced default: %d", cfg.RunnerDurationSecs)
		}
		if cfg.TestSuite != "land_blocking" {
			t.Errorf("unset variable replaced default: %q", cfg.TestSuite)
		}
	})

	t.Run("flag_only_fields_ignored", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := LoadEnv(cfg, map[string]string{"DryRun": "true", "DRY_RUN": "true"}); err != nil {
			t.Fatal(err)
		}
		if cfg.DryRun {
			t.Error("DryRun set from environment")
		}
	})

	t.Run("bad_value", func(t *testing.T) {
		if err := LoadEnv(DefaultConfig(), map[string]string{"FORGE_NUM_VALIDATORS": "many"}); err == nil {
			t.Error("LoadEnv() accepted non-numeric count")
		}
	})
}

func TestBindTestFlags(t *testing.T) {
	cfg := DefaultConfig()
	if err := LoadEnv(cfg, map[string]string{"FORGE_TEST_SUITE": "compat", "FORGE_CLUSTER_NAME": "aptos-forge-0"}); err != nil {
		t.Fatal(err)
	}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindTestFlags(fs, cfg)
	BindGlobalFlags(fs, cfg)

	if err := fs.Parse([]string{"--forge-cluster-name", "aptos-forge-1", "--dry-run", "-v", "--poll-attempts=7"}); err != nil {
		t.Fatal(err)
	}
	if cfg.TestSuite != "compat" {
		t.Errorf("env value lost: %q", cfg.TestSuite)
	}
	if cfg.ClusterName != "aptos-forge-1" || !cfg.DryRun || !cfg.Verbose || cfg.PollAttempts != 7 {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if got := cfg.K8sOptions(); got.PollAttempts != 7 || got.TemplatePath != runner.DefaultTemplatePath {
		t.Errorf("K8sOptions() = %+v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"mode", func(c *Config) { c.RunnerMode = "docker" }, "forge_runner_mode"},
		{"pre_forge_ok", func(c *Config) { c.RunnerMode = ModePreForge }, ""},
		{"suite", func(c *Config) { c.TestSuite = "" }, "forge_test_suite"},
		{"duration", func(c *Config) { c.RunnerDurationSecs = 0 }, "forge_runner_duration_secs"},
		{"validators", func(c *Config) { c.NumValidators = -1 }, "forge_num_validators"},
		{"profiles", func(c *Config) { c.EnableFailpoints, c.EnablePerformance = true, true }, "forge_enable_failpoints"},
		{"region", func(c *Config) { c.AWSRegion = "" }, "aws_region"},
		{"poll_attempts", func(c *Config) { c.PollAttempts = 0 }, "poll_attempts"},
		{"ready_timeout", func(c *Config) { c.ReadyTimeout = 0 }, "ready_timeout"},
		{"log_format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"log_level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"sample_rate", func(c *Config) { c.TraceSampleRate = 2 }, "trace_sample_rate"},
		{"metrics_addr", func(c *Config) { c.MetricsAddr = "nope" }, "metrics_addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			var ve ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("Validate() = %v, want field %s", err, tt.field)
			}
		})
	}

	t.Run("joins_all", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TestSuite = ""
		cfg.AWSRegion = ""
		err := Validate(cfg)
		if err == nil || strings.Count(err.Error(), "\n") != 1 {
			t.Errorf("Validate() = %v", err)
		}
	})

	t.Run("global_ignores_run_fields", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TestSuite = ""
		if err := ValidateGlobal(cfg); err != nil {
			t.Errorf("ValidateGlobal() = %v", err)
		}
	})
}
