package analyze

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/secpipe-io/secpipe/internal/backend"
	"github.com/secpipe-io/secpipe/internal/findings"
	"github.com/secpipe-io/secpipe/internal/pipeline"
	"github.com/secpipe-io/secpipe/internal/report"
	"github.com/secpipe-io/secpipe/internal/scanner"
	"github.com/secpipe-io/secpipe/pkg/shared/config"
	"github.com/secpipe-io/secpipe/pkg/shared/errors"
	"github.com/secpipe-io/secpipe/pkg/shared/logger"
)

var AppConfig *config.Config

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// NewAnalyzeCmd creates a new cobra.Command for the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:          "analyze [file]",
		SilenceUsage: true,
		Short:        "Analyze a Python file and print the report as JSON",
		Long: `Analyze runs the given Python file through the full analysis pipeline.
Stage progress is written to stderr; the final report is written to stdout
as JSON. Reads from stdin when no file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(args)
			if err != nil {
				return err
			}
			return runAnalysis(cmd, code, quiet)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress stage progress output")
	return cmd
}

func readSource(args []string) (string, error) {
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %q: %w", args[0], err)
	}
	return string(data), nil
}

func runAnalysis(cmd *cobra.Command, code string, quiet bool) error {
	log := logger.NewLogger(AppConfig, "analyze")
	orchestrator := pipeline.NewOrchestrator(
		AppConfig,
		log,
		backend.NewClient(AppConfig, log),
		scanner.New(AppConfig, log),
	)

	stream := orchestrator.Run(cmd.Context(), code)

	var result *report.Report
	var runErr error
	progress := cmd.ErrOrStderr()

	for event := range stream.Events() {
		switch payload := event.Payload.(type) {
		case pipeline.AgentStartPayload:
			if !quiet {
				fmt.Fprintf(progress, "[%d/%d] %s\n", payload.Step, payload.Total, payload.Agent)
			}
		case pipeline.AgentThoughtPayload:
			if !quiet {
				fmt.Fprintf(progress, "      %s\n", payload.Text)
			}
		case pipeline.ToolCalledPayload:
			if !quiet {
				fmt.Fprintf(progress, "      running %s\n", payload.Tool)
			}
		case findings.Finding:
			if !quiet {
				fmt.Fprintf(progress, "      finding [%s] %s\n", payload.Severity, payload.RuleID)
			}
		case pipeline.HandoffPayload:
			if !quiet {
				fmt.Fprintf(progress, "      -> %s\n", payload.Summary)
			}
		case *report.Report:
			result = payload
		case pipeline.ErrorPayload:
			runErr = fmt.Errorf("%s", payload.Message)
			if payload.Reason != "" {
				// Rejected input, not a pipeline failure.
				runErr = errors.NewCommandError(runErr, 2)
			}
		}
	}

	if runErr != nil {
		return runErr
	}
	if result == nil {
		return fmt.Errorf("analysis ended without a report")
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
