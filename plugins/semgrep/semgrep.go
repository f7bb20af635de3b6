package main

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/secpipe-io/secpipe/pkg/shared"
)

const defaultRuleSet = "auto"

// ScannerSemgrep runs the semgrep CLI against a target and writes a
// SARIF results file.
type ScannerSemgrep struct {
	logger hclog.Logger
}

func (g *ScannerSemgrep) Scan(req shared.ScannerScanRequest) (shared.ScannerScanResponse, error) {
	if err := validateScan(&req); err != nil {
		return shared.ScannerScanResponse{}, err
	}

	ruleSet := defaultRuleSet
	if req.ConfigPath != "" {
		ruleSet = req.ConfigPath
	}

	args := []string{"--config", ruleSet, "--sarif", "-o", req.ResultsPath}
	args = append(args, req.AdditionalArgs...)
	args = append(args, req.TargetPath)

	g.logger.Info("starting scan", "target", req.TargetPath, "rules", ruleSet)

	var stderr bytes.Buffer
	cmd := exec.Command("semgrep", args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		g.logger.Error("semgrep execution failed", "error", err, "stderr", stderr.String())
		return shared.ScannerScanResponse{}, fmt.Errorf("semgrep: %w: %s", err, stderr.String())
	}

	g.logger.Info("scan finished", "target", req.TargetPath, "results", req.ResultsPath)
	return shared.ScannerScanResponse{ResultsPath: req.ResultsPath}, nil
}

func validateScan(req *shared.ScannerScanRequest) error {
	if req.TargetPath == "" {
		return fmt.Errorf("target path is required")
	}
	if req.ResultsPath == "" {
		return fmt.Errorf("results path is required")
	}
	return nil
}

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Level:      hclog.Trace,
		Output:     os.Stderr,
		JSONFormat: true,
	})

	scanner := &ScannerSemgrep{logger: logger}

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: shared.HandshakeConfig,
		Plugins: map[string]plugin.Plugin{
			shared.PluginTypeScanner: &shared.ScannerPlugin{Impl: scanner},
		},
	})
}
