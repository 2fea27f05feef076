// Package config loads the proxy configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPort              = "8080"
	DefaultRedisURL          = "localhost:6379"
	DefaultLogLevel          = "info"
	DefaultGitHubAPIURL      = "https://api.github.com"
	DefaultJiraProduct       = "cloud"
	DefaultSchedulerMinDelay = 1 * time.Second
	DefaultSchedulerBackoff  = 60 * time.Second
	DefaultSchedulerRetries  = 5
	DefaultCacheRetention    = 24 * time.Hour
)

// Config holds the configuration for the portal proxy.
type Config struct {
	Port           string
	RedisURL       string
	CacheRetention time.Duration
	Log            LogConfig
	GitHub         GitHubConfig
	Jira           JiraConfig
	Scheduler      SchedulerConfig
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level  string
	Pretty bool
}

// GitHubConfig holds the GitHub API settings.
type GitHubConfig struct {
	APIURL string
	Token  string
}

// JiraConfig holds the Jira API settings. An empty APIURL disables Jira.
type JiraConfig struct {
	APIURL    string
	Product   string
	Token     string
	Email     string
	RateLimit float64
}

// SchedulerConfig holds the GitHub request pacing.
type SchedulerConfig struct {
	MinDelay   time.Duration
	MaxBackoff time.Duration
	MaxRetries int
}

// Load reads the given env files, or ".env" when none are given, and then
// the process environment. Variables already set in the environment win.
// A missing default ".env" is not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", DefaultPort),
		RedisURL: getEnv("REDIS_URL", DefaultRedisURL),
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", DefaultLogLevel),
		},
		GitHub: GitHubConfig{
			APIURL: getEnv("GITHUB_API_URL", DefaultGitHubAPIURL),
			Token:  getEnv("GITHUB_TOKEN", ""),
		},
		Jira: JiraConfig{
			APIURL:  getEnv("JIRA_API_URL", ""),
			Product: getEnv("JIRA_PRODUCT", DefaultJiraProduct),
			Token:   getEnv("JIRA_TOKEN", ""),
			Email:   getEnv("JIRA_EMAIL", ""),
		},
	}

	var err error
	if cfg.Log.Pretty, err = getEnvBool("LOG_PRETTY", false); err != nil {
		return nil, err
	}
	if cfg.CacheRetention, err = getEnvDuration("CACHE_RETENTION", DefaultCacheRetention); err != nil {
		return nil, err
	}
	if cfg.Jira.RateLimit, err = getEnvFloat("JIRA_RATE_LIMIT", 0); err != nil {
		return nil, err
	}
	if cfg.Scheduler.MinDelay, err = getEnvDuration("SCHEDULER_MIN_DELAY", DefaultSchedulerMinDelay); err != nil {
		return nil, err
	}
	if cfg.Scheduler.MaxBackoff, err = getEnvDuration("SCHEDULER_MAX_BACKOFF", DefaultSchedulerBackoff); err != nil {
		return nil, err
	}
	if cfg.Scheduler.MaxRetries, err = getEnvInt("SCHEDULER_MAX_RETRIES", DefaultSchedulerRetries); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RedisOptions parses RedisURL, which is either a redis:// URL or a plain
// host:port address.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if strings.HasPrefix(c.RedisURL, "redis://") || strings.HasPrefix(c.RedisURL, "rediss://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Scheduler.MinDelay <= 0 {
		return fmt.Errorf("SCHEDULER_MIN_DELAY must be greater than 0")
	}
	if cfg.Scheduler.MaxBackoff < cfg.Scheduler.MinDelay {
		return fmt.Errorf("SCHEDULER_MAX_BACKOFF must not be less than SCHEDULER_MIN_DELAY")
	}
	if cfg.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("SCHEDULER_MAX_RETRIES must not be negative")
	}
	if cfg.Jira.RateLimit < 0 {
		return fmt.Errorf("JIRA_RATE_LIMIT must not be negative")
	}
	if cfg.Jira.Email != "" && cfg.Jira.Token == "" {
		return fmt.Errorf("JIRA_TOKEN is required when JIRA_EMAIL is set")
	}
	return nil
}
