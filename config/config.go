/*
Package config loads the server and CLI configuration.

SOURCES (later wins):
  1. Built-in defaults
  2. Optional YAML file (-config flag / SCHEDULER_CONFIG)
  3. SCHEDULER_* environment variables

FILE FORMAT:
  http:
    addr: ""                 # bind address, empty means all interfaces
    port: 8080
    allowed_origins: ["http://localhost:3000"]
    shutdown_timeout: 30s
  database:
    path: scheduler.db       # ":memory:" for a throwaway database
  log:
    level: info              # debug | info | warn | error
    format: text             # text | json
  policy:
    file: policy.yaml        # seeded into the config table at startup
    watch: false             # re-seed when the file changes

ENVIRONMENT:
  SCHEDULER_HTTP_ADDR, SCHEDULER_HTTP_PORT, SCHEDULER_CORS_ORIGINS (comma list),
  SCHEDULER_DB_PATH, SCHEDULER_LOG_LEVEL, SCHEDULER_LOG_FORMAT,
  SCHEDULER_POLICY_FILE, SCHEDULER_WATCH_POLICY

Every invalid value is reported in one error so a broken deployment is fixed
in a single pass.
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/assignment-engine/logging"
)

const EnvConfigPath = "SCHEDULER_CONFIG"

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Policy   PolicyConfig   `yaml:"policy"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ListenAddr is the host:port passed to http.Server.
func (h HTTPConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", h.Addr, h.Port)
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PolicyConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            8080,
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Path: "scheduler.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path (skipped when path is empty), then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if len(bytes.TrimSpace(data)) > 0 {
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	var errs []error
	errs = append(errs, applyEnv(&cfg)...)
	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func applyEnv(cfg *Config) []error {
	var errs []error

	if v, ok := os.LookupEnv("SCHEDULER_HTTP_ADDR"); ok {
		cfg.HTTP.Addr = v
	}
	if v, ok := os.LookupEnv("SCHEDULER_HTTP_PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("SCHEDULER_HTTP_PORT: %q is not a number", v))
		} else {
			cfg.HTTP.Port = port
		}
	}
	if v, ok := os.LookupEnv("SCHEDULER_CORS_ORIGINS"); ok {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv("SCHEDULER_DB_PATH"); ok {
		cfg.Database.Path = v
	}
	if v, ok := os.LookupEnv("SCHEDULER_LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv("SCHEDULER_LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	if v, ok := os.LookupEnv("SCHEDULER_POLICY_FILE"); ok {
		cfg.Policy.File = v
	}
	if v, ok := os.LookupEnv("SCHEDULER_WATCH_POLICY"); ok {
		watch, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("SCHEDULER_WATCH_POLICY: %q is not a boolean", v))
		} else {
			cfg.Policy.Watch = watch
		}
	}
	return errs
}

func (c Config) validate() []error {
	var errs []error
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("http.shutdown_timeout must not be negative"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q (use text or json)", c.Log.Format))
	}
	if c.Policy.Watch && strings.TrimSpace(c.Policy.File) == "" {
		errs = append(errs, fmt.Errorf("policy.watch requires policy.file"))
	}
	return errs
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
