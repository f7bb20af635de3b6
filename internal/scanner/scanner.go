package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/secpipe-io/secpipe/internal/findings"
	"github.com/secpipe-io/secpipe/pkg/shared"
	"github.com/secpipe-io/secpipe/pkg/shared/config"
)

// Outcome statuses. Unavailable is recoverable by contract: the
// owning stage continues with its own reasoning.
const (
	StatusFindings    = "findings"
	StatusEmpty       = "empty"
	StatusUnavailable = "unavailable"
)

// Outcome is the result of one tool invocation.
type Outcome struct {
	Status   string
	Findings []findings.Finding
	Reason   string // set when Status is unavailable
}

// DispatchFunc hands a scan request to a scanner implementation.
// Production dispatch goes through the plugin host; tests substitute
// an in-process function.
type DispatchFunc func(req shared.ScannerScanRequest) (shared.ScannerScanResponse, error)

// Adapter invokes the external static-analysis tool and parses its
// SARIF output into findings.
type Adapter struct {
	cfg      *config.Config
	logger   hclog.Logger
	dispatch DispatchFunc
}

// New creates an Adapter backed by the configured scanner plugin.
func New(cfg *config.Config, logger hclog.Logger) *Adapter {
	a := &Adapter{
		cfg:    cfg,
		logger: logger,
	}
	a.dispatch = a.dispatchPlugin
	return a
}

// NewWithDispatch creates an Adapter with a custom dispatch function.
func NewWithDispatch(cfg *config.Config, logger hclog.Logger, dispatch DispatchFunc) *Adapter {
	return &Adapter{
		cfg:      cfg,
		logger:   logger,
		dispatch: dispatch,
	}
}

// ToolName reports the configured scanner plugin name, surfaced in
// tool_called events.
func (a *Adapter) ToolName() string {
	return a.cfg.Scanner.Plugin
}

// Scan writes code to a temp file, runs the scanner on it and parses
// the SARIF results. Every failure mode maps to an Unavailable
// outcome; Scan never returns an error that should halt a stage.
func (a *Adapter) Scan(ctx context.Context, code string) Outcome {
	workDir, err := os.MkdirTemp(config.GetTempHome(a.cfg), "scan-")
	if err != nil {
		// Temp home may not exist on a fresh install.
		if mkErr := os.MkdirAll(config.GetTempHome(a.cfg), 0o755); mkErr != nil {
			return unavailable(fmt.Sprintf("failed to create scan workspace: %v", err))
		}
		workDir, err = os.MkdirTemp(config.GetTempHome(a.cfg), "scan-")
		if err != nil {
			return unavailable(fmt.Sprintf("failed to create scan workspace: %v", err))
		}
	}
	defer os.RemoveAll(workDir)

	targetPath := filepath.Join(workDir, "target.py")
	if err := os.WriteFile(targetPath, []byte(code), 0o600); err != nil {
		return unavailable(fmt.Sprintf("failed to write scan target: %v", err))
	}
	resultsPath := filepath.Join(workDir, fmt.Sprintf("%s-%s.sarif", a.cfg.Scanner.Plugin, uuid.NewString()))

	req := shared.ScannerScanRequest{
		TargetPath:  targetPath,
		ResultsPath: resultsPath,
	}

	scanCtx, cancel := context.WithTimeout(ctx, a.cfg.Scanner.ScanTimeout)
	defer cancel()

	type dispatchResult struct {
		resp shared.ScannerScanResponse
		err  error
	}
	done := make(chan dispatchResult, 1)
	go func() {
		resp, err := a.dispatch(req)
		done <- dispatchResult{resp: resp, err: err}
	}()

	var resp shared.ScannerScanResponse
	select {
	case <-scanCtx.Done():
		return unavailable(fmt.Sprintf("scan did not finish: %v", scanCtx.Err()))
	case res := <-done:
		if res.err != nil {
			a.logger.Warn("scanner invocation failed", "plugin", a.cfg.Scanner.Plugin, "error", res.err)
			return unavailable(fmt.Sprintf("scanner failed to run: %v", res.err))
		}
		resp = res.resp
	}

	if resp.ResultsPath == "" {
		resp.ResultsPath = resultsPath
	}

	parsed, err := ParseSARIFFile(resp.ResultsPath)
	if err != nil {
		a.logger.Warn("scanner output could not be parsed", "path", resp.ResultsPath, "error", err)
		return unavailable(fmt.Sprintf("scanner output could not be parsed: %v", err))
	}

	if len(parsed) == 0 {
		return Outcome{Status: StatusEmpty}
	}
	for i := range parsed {
		parsed[i].Snippet = findings.ExtractSnippet(code, parsed[i].Line, parsed[i].EndLine)
	}
	return Outcome{Status: StatusFindings, Findings: parsed}
}

// dispatchPlugin runs the configured scanner plugin through the
// plugin host. The plugin process lives only for this invocation.
func (a *Adapter) dispatchPlugin(req shared.ScannerScanRequest) (shared.ScannerScanResponse, error) {
	var resp shared.ScannerScanResponse
	err := shared.WithPlugin(a.cfg, "plugin-scanner", shared.PluginTypeScanner, a.cfg.Scanner.Plugin, func(raw interface{}) error {
		impl, ok := raw.(shared.Scanner)
		if !ok {
			return fmt.Errorf("invalid plugin type")
		}
		var err error
		resp, err = impl.Scan(req)
		return err
	})
	return resp, err
}

func unavailable(reason string) Outcome {
	return Outcome{Status: StatusUnavailable, Reason: reason}
}
