package config

import (
	"reflect"
)

// SetThen selects the first value if set, otherwise the default.
func SetThen[T any](value T, defaultValue T) T {
	if reflect.ValueOf(value).IsZero() {
		return defaultValue
	}
	return value
}

// GetPluginsHome returns the resolved plugins folder.
func GetPluginsHome(cfg *Config) string {
	return cfg.Secpipe.PluginsFolder
}

// GetTempHome returns the resolved temp folder.
func GetTempHome(cfg *Config) string {
	return cfg.Secpipe.TempFolder
}
