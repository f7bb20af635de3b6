package shared

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/hashicorp/go-plugin"

	"github.com/secpipe-io/secpipe/pkg/shared/config"
	"github.com/secpipe-io/secpipe/pkg/shared/logger"
)

const (
	PluginTypeScanner string = "scanner"
)

// HandshakeConfig is the basic handshake between the core and a
// plugin. It is a UX feature that stops users from launching plugin
// binaries directly, not a security feature.
var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SECPIPE",
	MagicCookieValue: "c7196eb2b4a9f0d13be35800ab3a1f2d6f4d2c91",
}

var PluginMap = map[string]plugin.Plugin{
	PluginTypeScanner: &ScannerPlugin{},
}

// WithPlugin launches the named plugin binary, dispenses the
// requested plugin type and hands the raw implementation to f. The
// plugin process is killed when f returns, so no scanner state
// survives a single invocation.
func WithPlugin(cfg *config.Config, loggerName string, pluginType string, pluginName string, f func(interface{}) error) error {
	log := logger.NewLogger(cfg, loggerName)

	pluginPath := filepath.Join(config.GetPluginsHome(cfg), pluginName)
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap,
		Cmd:             exec.Command(pluginPath),
		Logger:          log,
	})
	defer client.Kill()

	rpcClient, err := client.Client()
	if err != nil {
		return fmt.Errorf("failed to start plugin %q: %w", pluginName, err)
	}

	raw, err := rpcClient.Dispense(pluginType)
	if err != nil {
		return fmt.Errorf("failed to dispense plugin type %q: %w", pluginType, err)
	}

	return f(raw)
}
