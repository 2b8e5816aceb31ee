package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/waabox/commitwatch/internal/domain"
	"github.com/waabox/commitwatch/internal/git"
)

// ErrInvalid wraps every configuration problem; the process must not start.
var ErrInvalid = errors.New("invalid configuration")

// WebhookConfig holds the notification destination.
type WebhookConfig struct {
	URL    string `toml:"url" validate:"required,url"`
	Format string `toml:"format" validate:"omitempty,oneof=discord slack"`
}

// GitHubConfig holds authentication configuration for GitHub.
type GitHubConfig struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url" validate:"omitempty,url"`
}

// GitLabConfig holds authentication configuration for GitLab.
type GitLabConfig struct {
	Token string `toml:"token"`
	URL   string `toml:"url" validate:"omitempty,url"`
}

// StateConfig selects where watermarks are persisted.
type StateConfig struct {
	Path    string `toml:"path"`
	Backend string `toml:"backend" validate:"omitempty,oneof=file bolt"`
}

// LogConfig controls log verbosity and the zone used for timestamps.
type LogConfig struct {
	Level    string `toml:"level"`
	Timezone string `toml:"timezone"`
}

// Config holds all commitwatch configuration.
type Config struct {
	Repositories          []string      `toml:"repositories" validate:"min=1,dive,required"`
	Webhook               WebhookConfig `toml:"webhook"`
	GitHub                GitHubConfig  `toml:"github"`
	GitLab                GitLabConfig  `toml:"gitlab"`
	PollIntervalSeconds   float64       `toml:"poll_interval_seconds" validate:"gte=0"`
	RequestTimeoutSeconds float64       `toml:"request_timeout_seconds" validate:"gte=0"`
	BranchBlacklist       string        `toml:"branch_blacklist"`
	BaselineCommits       int           `toml:"baseline_commits" validate:"gte=0"`
	MaxScanCommits        int           `toml:"max_scan_commits" validate:"gte=0"`
	State                 StateConfig   `toml:"state"`
	Log                   LogConfig     `toml:"log"`
}

const (
	defaultPollInterval   = 120 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultBaseline       = 1
	defaultStatePath      = "last_commits.toml"
	defaultBoltPath       = "last_commits.db"
	defaultStateBackend   = "file"
	defaultWebhookFormat  = "discord"
	defaultLogLevel       = "info"
	defaultLogTimezone    = "America/New_York"
)

// PollInterval returns the configured interval, or 120s when unset.
func (c Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds > 0 {
		return time.Duration(c.PollIntervalSeconds * float64(time.Second))
	}
	return defaultPollInterval
}

// RequestTimeout returns the per-request timeout, or 10s when unset.
func (c Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds > 0 {
		return time.Duration(c.RequestTimeoutSeconds * float64(time.Second))
	}
	return defaultRequestTimeout
}

// BaselineOrDefault returns how many commits are reported for a branch seen for the first time.
func (c Config) BaselineOrDefault() int {
	if c.BaselineCommits > 0 {
		return c.BaselineCommits
	}
	return defaultBaseline
}

// StatePathOrDefault returns the state file location.
func (c Config) StatePathOrDefault() string {
	if c.State.Path != "" {
		return c.State.Path
	}
	if c.StateBackendOrDefault() == "bolt" {
		return defaultBoltPath
	}
	return defaultStatePath
}

// StateBackendOrDefault returns "file" or "bolt".
func (c Config) StateBackendOrDefault() string {
	if c.State.Backend != "" {
		return c.State.Backend
	}
	return defaultStateBackend
}

// WebhookFormatOrDefault returns "discord" or "slack".
func (c Config) WebhookFormatOrDefault() string {
	if c.Webhook.Format != "" {
		return c.Webhook.Format
	}
	return defaultWebhookFormat
}

// LogLevelOrDefault returns the configured log level.
func (c Config) LogLevelOrDefault() string {
	if c.Log.Level != "" {
		return c.Log.Level
	}
	return defaultLogLevel
}

// LogTimezoneOrDefault returns the IANA zone used for log timestamps.
func (c Config) LogTimezoneOrDefault() string {
	if c.Log.Timezone != "" {
		return c.Log.Timezone
	}
	return defaultLogTimezone
}

// Targets parses the configured repositories into watch targets.
func (c Config) Targets() ([]domain.Repository, error) {
	targets, err := git.ParseTargets(c.Repositories)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return targets, nil
}

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns an empty config without error.
// Environment variables always take precedence over file values.
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("%w: reading %s: %v", ErrInvalid, path, err)
			}
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrInvalid, path, err)
	}
	return nil
}

// DefaultConfigPath returns the default path for the commitwatch config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "commitwatch", "config.toml")
}

// Validate checks required fields, formats and enumerations.
func Validate(cfg Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			problems := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				problems = append(problems, describe(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := cfg.Targets(); err != nil {
		return err
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " needs at least one entry"
	case "url":
		return field + " must be a URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s %s", field, fe.Tag(), fe.Param())
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("REPOSITORIES"); v != "" {
		cfg.Repositories = splitList(v)
	}
	// Single-repository deployments configure the commits endpoint directly.
	if v := os.Getenv("GITHUB_API_URL"); v != "" {
		cfg.Repositories = append(cfg.Repositories, v)
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
	}
	setString(&cfg.Webhook.Format, "WEBHOOK_FORMAT")
	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")
	setString(&cfg.GitHub.BaseURL, "GITHUB_BASE_URL")
	setString(&cfg.GitLab.Token, "GITLAB_TOKEN")
	setString(&cfg.GitLab.URL, "GITLAB_URL")
	setString(&cfg.BranchBlacklist, "BRANCH_BLACKLIST")
	setString(&cfg.State.Path, "STATE_FILE")
	setString(&cfg.State.Backend, "STATE_BACKEND")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Timezone, "LOG_TIMEZONE")

	if err := setFloat(&cfg.PollIntervalSeconds, "POLL_INTERVAL_SECONDS"); err != nil {
		return err
	}
	if err := setFloat(&cfg.RequestTimeoutSeconds, "REQUEST_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if err := setInt(&cfg.BaselineCommits, "BASELINE_COMMITS"); err != nil {
		return err
	}
	return setInt(&cfg.MaxScanCommits, "MAX_SCAN_COMMITS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v)
	}
	*dst = f
	return nil
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
