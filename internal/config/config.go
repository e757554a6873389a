package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxConcurrent = 5
	DefaultOutputFolder  = "merged"
)

var ErrMissingCredentials = errors.New("jira credentials are not configured")

// Config holds the base configuration
type Config struct {
	Jira     JiraConfig     `yaml:"jira"`
	Download DownloadConfig `yaml:"download"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type JiraConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Email             string        `yaml:"email"`
	APIToken          string        `yaml:"api_token"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

type DownloadConfig struct {
	BaseDir       string `yaml:"base_dir"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	OutputFolder  string `yaml:"output_folder"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	File     bool   `yaml:"file"`
	Filename string `yaml:"filename"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Jira: JiraConfig{
			Timeout:           60 * time.Second,
			RequestsPerSecond: 10,
		},
		Download: DownloadConfig{
			BaseDir:       defaultDownloadDir(),
			MaxConcurrent: DefaultMaxConcurrent,
			OutputFolder:  DefaultOutputFolder,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the optional YAML file and then applies environment variables on
// top of it. A missing file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	path := getEnv("WORKFLOW_CONFIG", DefaultPath())
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// DefaultPath is ~/.workflow/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".workflow", "config.yaml")
}

func (c *Config) loadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Jira.BaseURL = strings.TrimRight(getEnv("JIRA_BASE_URL", c.Jira.BaseURL), "/")
	c.Jira.Email = getEnv("JIRA_EMAIL", c.Jira.Email)
	c.Jira.APIToken = getEnv("JIRA_API_TOKEN", c.Jira.APIToken)
	c.Jira.Timeout = getEnvDuration("JIRA_TIMEOUT", c.Jira.Timeout)
	c.Jira.RequestsPerSecond = getEnvFloat("JIRA_REQUESTS_PER_SECOND", c.Jira.RequestsPerSecond)

	c.Download.BaseDir = getEnv("WORKFLOW_DOWNLOAD_DIR", c.Download.BaseDir)
	c.Download.MaxConcurrent = getEnvInt("DOWNLOAD_MAX_CONCURRENT", c.Download.MaxConcurrent)
	c.Download.OutputFolder = getEnv("DOWNLOAD_OUTPUT_FOLDER", c.Download.OutputFolder)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnvBool("LOG_FILE", c.Log.File)
	c.Log.Filename = getEnv("LOG_FILENAME", c.Log.Filename)

	c.Metrics.Textfile = getEnv("METRICS_TEXTFILE", c.Metrics.Textfile)
}

// Validate checks that Jira can be reached with the configured credentials.
func (c *Config) Validate() error {
	var missing []string
	if c.Jira.BaseURL == "" {
		missing = append(missing, "JIRA_BASE_URL")
	}
	if c.Jira.Email == "" {
		missing = append(missing, "JIRA_EMAIL")
	}
	if c.Jira.APIToken == "" {
		missing = append(missing, "JIRA_API_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "workflow")
	}
	return filepath.Join(home, "Downloads", "Workflow")
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
