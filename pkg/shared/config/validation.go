package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ValidateConfig checks the loaded configuration and fills in
// defaults for every directive that was left empty.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("YAML global config: configuration object is nil")
	}
	if err := validateSecpipeConfig(cfg); err != nil {
		return fmt.Errorf("YAML global config: secpipe directive is invalid: %w", err)
	}
	if err := validateHTTPConfig(&cfg.HTTPClient); err != nil {
		return fmt.Errorf("YAML global config: http_client directive is invalid: %w", err)
	}
	if err := validateBackendConfig(&cfg.Backend); err != nil {
		return fmt.Errorf("YAML global config: backend directive is invalid: %w", err)
	}
	if err := validateScannerConfig(&cfg.Scanner); err != nil {
		return fmt.Errorf("YAML global config: scanner directive is invalid: %w", err)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	return nil
}

func validateSecpipeConfig(cfg *Config) error {
	if err := updateHome(cfg); err != nil {
		return fmt.Errorf("failed to resolve home folder: %w", err)
	}
	updateFolder(&cfg.Secpipe.PluginsFolder, "SECPIPE_PLUGINS_FOLDER", "plugins", cfg)
	updateFolder(&cfg.Secpipe.TempFolder, "SECPIPE_TEMP_FOLDER", "tmp", cfg)
	return nil
}

func updateHome(cfg *Config) error {
	if cfg.Secpipe.HomeFolder != "" {
		return nil
	}
	if env := os.Getenv("SECPIPE_HOME"); env != "" {
		cfg.Secpipe.HomeFolder = env
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	cfg.Secpipe.HomeFolder = filepath.Join(home, ".secpipe")
	return nil
}

func updateFolder(target *string, envVar, name string, cfg *Config) {
	if *target != "" {
		return
	}
	if env := os.Getenv(envVar); env != "" {
		*target = env
		return
	}
	*target = filepath.Join(cfg.Secpipe.HomeFolder, name)
}

func validateHTTPConfig(httpConfig *HTTPClient) error {
	if httpConfig == nil {
		return fmt.Errorf("HTTP configuration is nil")
	}
	if httpConfig.RetryCount < 0 || httpConfig.RetryCount > 20 {
		return fmt.Errorf("retry_count must be between 0 and 20: %d", httpConfig.RetryCount)
	}

	durations := map[string]time.Duration{
		"retry_max_wait_time": httpConfig.RetryMaxWaitTime,
		"retry_wait_time":     httpConfig.RetryWaitTime,
		"timeout":             httpConfig.Timeout,
	}
	for name, duration := range durations {
		if err := validateDuration(duration, name, 10*time.Minute); err != nil {
			return err
		}
	}

	if (httpConfig.Proxy.Host == "") != (httpConfig.Proxy.Port == "") {
		return fmt.Errorf("proxy requires both host and port")
	}
	return nil
}

func validateBackendConfig(backend *Backend) error {
	if backend.BaseURL == "" {
		backend.BaseURL = DefaultBackendBaseURL
	}
	if backend.Model == "" {
		backend.Model = DefaultBackendModel
	}
	if backend.APIKeyEnv == "" {
		backend.APIKeyEnv = DefaultBackendAPIKeyEnv
	}
	if backend.StageTimeout == 0 {
		backend.StageTimeout = DefaultStageTimeout
	}
	return validateDuration(backend.StageTimeout, "stage_timeout", 30*time.Minute)
}

func validateScannerConfig(scanner *Scanner) error {
	if scanner.Plugin == "" {
		scanner.Plugin = DefaultScannerPlugin
	}
	if scanner.ScanTimeout == 0 {
		scanner.ScanTimeout = DefaultScanTimeout
	}
	return validateDuration(scanner.ScanTimeout, "scan_timeout", 30*time.Minute)
}

// validateDuration checks that a time.Duration is valid and within a specified maximum duration.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %q: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%q duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}
