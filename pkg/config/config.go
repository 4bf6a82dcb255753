package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	// Optional API settings
	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port"`

	// Optional SSL settings
	SSLCert string `mapstructure:"ssl_cert"`
	SSLKey  string `mapstructure:"ssl_key"`

	// Optional CORS settings
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Optional logging settings
	LogFile   string `mapstructure:"log_file"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // "text" or "json"

	// Realtime voice API
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`

	// Computer-use demo container
	ComputerDemoOrigin   string `mapstructure:"computer_demo_origin"`
	ComputerUseContainer string `mapstructure:"computer_use_container"`
	DockerBinary         string `mapstructure:"docker_binary"`

	// Coding-assistant CLI
	ClaudeBinary  string        `mapstructure:"claude_binary"`
	ClaudeArgs    []string      `mapstructure:"claude_args"`
	ClaudeWorkDir string        `mapstructure:"claude_workdir"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout"`

	DevMode bool `mapstructure:"dev_mode"`

	// Static paths
	ConfigPath string
	EnvFile    string
}

const (
	DefaultConfigPath         = "/etc/rdc/config.yml"
	DefaultEnvFile            = ".env"
	DefaultAPIHost            = "0.0.0.0"
	DefaultAPIPort            = 8000
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultOpenAIBaseURL      = "https://api.openai.com/v1"
	DefaultComputerDemoOrigin = "http://localhost:8080"
	DefaultDockerBinary       = "docker"
	DefaultClaudeBinary       = "claude"
	DefaultStopTimeout        = 5 * time.Second
	EnvPrefix                 = "RDC"
)

// DefaultCORSOrigins are the local front-end dev servers.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}

// envAliases binds keys to the unprefixed variable names used in .env files.
var envAliases = map[string]string{
	"openai_api_key":         "OPENAI_API_KEY",
	"cors_origins":           "CORS_ORIGINS",
	"computer_demo_origin":   "COMPUTER_DEMO_ORIGIN",
	"computer_use_container": "COMPUTER_USE_DEMO_CONTAINER",
}

// Load reads configuration from the optional YAML file at configPath, the
// optional dotenv file at envFile and the environment. An empty configPath
// uses DefaultConfigPath when that file exists.
func Load(configPath, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	// Variables already set in the environment take precedence.
	if err := gotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	v := viper.New()

	// Set defaults
	v.SetDefault("api_host", DefaultAPIHost)
	v.SetDefault("api_port", DefaultAPIPort)
	v.SetDefault("cors_origins", DefaultCORSOrigins)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
	v.SetDefault("openai_base_url", DefaultOpenAIBaseURL)
	v.SetDefault("computer_demo_origin", DefaultComputerDemoOrigin)
	v.SetDefault("docker_binary", DefaultDockerBinary)
	v.SetDefault("claude_binary", DefaultClaudeBinary)
	v.SetDefault("claude_args", []string{})
	v.SetDefault("stop_timeout", DefaultStopTimeout)

	// Allow environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for key, name := range envAliases {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(key), name); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", name, err)
		}
	}

	if configPath == "" {
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			configPath = DefaultConfigPath
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ConfigPath = configPath
	cfg.EnvFile = envFile
	cfg.CORSOrigins = splitOrigins(cfg.CORSOrigins)
	cfg.ComputerDemoOrigin = strings.TrimRight(cfg.ComputerDemoOrigin, "/")
	cfg.OpenAIBaseURL = strings.TrimRight(cfg.OpenAIBaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// splitOrigins accepts both a YAML list and a comma-separated env value.
func splitOrigins(origins []string) []string {
	var out []string
	for _, entry := range origins {
		for _, origin := range strings.Split(entry, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("api_port must be between 1 and 65535")
	}

	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive")
	}

	if c.ClaudeBinary == "" {
		return fmt.Errorf("claude_binary is required")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'text' or 'json'")
	}

	// Validate SSL config if provided
	if c.SSLCert != "" || c.SSLKey != "" {
		if c.SSLCert == "" || c.SSLKey == "" {
			return fmt.Errorf("both ssl_cert and ssl_key must be provided")
		}
		if _, err := os.Stat(c.SSLCert); os.IsNotExist(err) {
			return fmt.Errorf("ssl_cert file does not exist: %s", c.SSLCert)
		}
		if _, err := os.Stat(c.SSLKey); os.IsNotExist(err) {
			return fmt.Errorf("ssl_key file does not exist: %s", c.SSLKey)
		}
	}

	return nil
}

func (c *Config) IsDevMode() bool {
	return c.DevMode || os.Getenv("RDC_DEV_MODE") == "1"
}

// Addr returns the host:port the API server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}
