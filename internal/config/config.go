// Package config loads and validates the orchestrator configuration from
// defaults, a YAML file and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load balancing policy names.
const (
	PolicyRoundRobin      = "round-robin"
	PolicyLeastLoaded     = "least-loaded"
	PolicyCapabilityBased = "capability-based"
)

// Config is the complete configuration for the orchestration engine.
type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Retry        RetryConfig        `yaml:"retry_policy"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// OrchestratorConfig holds scheduling and execution settings.
type OrchestratorConfig struct {
	// MaxConcurrentTasks caps the number of in-flight tasks.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks" env:"ORC_MAX_CONCURRENT_TASKS"`

	// TaskTimeout bounds a single task attempt.
	TaskTimeout time.Duration `yaml:"task_timeout" env:"ORC_TASK_TIMEOUT"`

	// DispatchInterval is the scheduler's periodic dispatch tick. Dispatch
	// also runs immediately on submission and on task completion.
	DispatchInterval time.Duration `yaml:"dispatch_interval" env:"ORC_DISPATCH_INTERVAL"`

	// LoadBalancing selects the agent selection policy.
	LoadBalancing string `yaml:"load_balancing" env:"ORC_LOAD_BALANCING"`

	// DeadLetterThreshold is the number of failed dispatch attempts before
	// a head-of-queue task with no eligible agent is moved to the dead
	// letter set instead of blocking the queue forever.
	DeadLetterThreshold int `yaml:"dead_letter_threshold" env:"ORC_DEAD_LETTER_THRESHOLD"`
}

// RetryConfig holds the supervisor's retry policy.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first, per
	// task instance.
	MaxRetries int `yaml:"max_retries" env:"ORC_RETRY_MAX_RETRIES"`

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"ORC_RETRY_INITIAL_BACKOFF"`

	// BackoffMultiplier scales the backoff after each attempt.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" env:"ORC_RETRY_BACKOFF_MULTIPLIER"`
}

// ServerConfig holds the REST API server configuration.
type ServerConfig struct {
	Address      string        `yaml:"address" env:"ORC_SERVER_ADDRESS"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"ORC_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"ORC_SERVER_WRITE_TIMEOUT"`
	EnableCORS   bool          `yaml:"enable_cors" env:"ORC_SERVER_ENABLE_CORS"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" env:"ORC_LOG_LEVEL"`
	Format   string `yaml:"format" env:"ORC_LOG_FORMAT"`
	Output   string `yaml:"output" env:"ORC_LOG_OUTPUT"`
	FilePath string `yaml:"file_path" env:"ORC_LOG_FILE_PATH"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxConcurrentTasks:  5,
			TaskTimeout:         30 * time.Second,
			DispatchInterval:    time.Second,
			LoadBalancing:       PolicyCapabilityBased,
			DeadLetterThreshold: 10,
		},
		Retry: RetryConfig{
			MaxRetries:        0,
			InitialBackoff:    500 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			EnableCORS:   false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Loader loads configuration from defaults, file and environment, in that
// precedence order.
type Loader struct {
	configPath string
}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// Load loads configuration from all sources: defaults < YAML file < env.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvOverrides(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides walks the struct and applies values from the env tags.
func applyEnvOverrides(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && fieldType.Tag.Get("env") == "" {
			if field.Type() != reflect.TypeOf(time.Time{}) {
				if err := applyEnvOverrides(field); err != nil {
					return err
				}
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("invalid value for %s: %w", envTag, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		// Durations accept Go duration syntax.
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("orchestrator.max_concurrent_tasks must be positive, got %d", c.Orchestrator.MaxConcurrentTasks)
	}
	if c.Orchestrator.TaskTimeout <= 0 {
		return fmt.Errorf("orchestrator.task_timeout must be positive, got %s", c.Orchestrator.TaskTimeout)
	}
	if c.Orchestrator.DispatchInterval <= 0 {
		return fmt.Errorf("orchestrator.dispatch_interval must be positive, got %s", c.Orchestrator.DispatchInterval)
	}
	switch c.Orchestrator.LoadBalancing {
	case PolicyRoundRobin, PolicyLeastLoaded, PolicyCapabilityBased:
	default:
		return fmt.Errorf("orchestrator.load_balancing must be one of %q, %q, %q; got %q",
			PolicyRoundRobin, PolicyLeastLoaded, PolicyCapabilityBased, c.Orchestrator.LoadBalancing)
	}
	if c.Orchestrator.DeadLetterThreshold <= 0 {
		return fmt.Errorf("orchestrator.dead_letter_threshold must be positive, got %d", c.Orchestrator.DeadLetterThreshold)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry_policy.max_retries cannot be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.MaxRetries > 0 {
		if c.Retry.InitialBackoff <= 0 {
			return fmt.Errorf("retry_policy.initial_backoff must be positive, got %s", c.Retry.InitialBackoff)
		}
		if c.Retry.BackoffMultiplier < 1 {
			return fmt.Errorf("retry_policy.backoff_multiplier must be >= 1, got %g", c.Retry.BackoffMultiplier)
		}
	}
	return nil
}
