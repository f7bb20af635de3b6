package config

import (
	"time"
)

// Config is the root of the YAML configuration file.
type Config struct {
	Logger     Logger     `yaml:"logger"`
	HTTPClient HTTPClient `yaml:"http_client"`
	Secpipe    Secpipe    `yaml:"secpipe"`
	Backend    Backend    `yaml:"backend"`
	Scanner    Scanner    `yaml:"scanner"`
	Server     Server     `yaml:"server"`
}

type Logger struct {
	Level string `yaml:"level"`
}

// HTTPClient holds tuning for the resty client used to reach the
// reasoning backend.
type HTTPClient struct {
	Debug            bool            `yaml:"debug"`
	RetryCount       int             `yaml:"retry_count"`
	RetryWaitTime    time.Duration   `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration   `yaml:"retry_max_wait_time"`
	Timeout          time.Duration   `yaml:"timeout"`
	TLSClientConfig  TLSClientConfig `yaml:"tls_client_config"`
	Proxy            Proxy           `yaml:"proxy"`
}

type TLSClientConfig struct {
	Verify *bool `yaml:"verify"`
}

type Proxy struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Secpipe holds working folders for the core and its plugins.
type Secpipe struct {
	HomeFolder    string `yaml:"home_folder"`
	PluginsFolder string `yaml:"plugins_folder"`
	TempFolder    string `yaml:"temp_folder"`
}

// Backend configures the reasoning backend (OpenAI-compatible chat
// completions endpoint) that powers the analysis stages.
type Backend struct {
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	StageTimeout time.Duration `yaml:"stage_timeout"`
	MaxTokens    int           `yaml:"max_tokens"`
}

// Scanner configures the static-analysis tool integration.
type Scanner struct {
	Plugin      string        `yaml:"plugin"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

// Server configures the HTTP API.
type Server struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}
