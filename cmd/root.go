package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/secpipe-io/secpipe/cmd/analyze"
	"github.com/secpipe-io/secpipe/cmd/serve"
	"github.com/secpipe-io/secpipe/cmd/version"
	"github.com/secpipe-io/secpipe/pkg/shared/config"
	sherrors "github.com/secpipe-io/secpipe/pkg/shared/errors"
)

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "secpipe [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Secpipe runs Python code through a multi-stage security analysis pipeline.",
		Long: `Secpipe orchestrates a sequence of specialist AI analysis stages over
submitted Python code: triage, static analysis with Semgrep, code review,
red team, blue team, and a final report synthesizer.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.yml)")
	rootCmd.AddCommand(analyze.NewAnalyzeCmd())
	rootCmd.AddCommand(serve.NewServeCmd())
	rootCmd.AddCommand(version.NewVersionCmd())
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		var cmdErr *sherrors.CommandError
		if errors.As(err, &cmdErr) {
			return cmdErr.ExitCode
		}
		return 1
	}
	return 0
}

func initConfig() {
	var err error

	if cfgFile == "" {
		cfgFile = "config.yml"
	}
	AppConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing config failed: %v\n", err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(AppConfig); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	analyze.Init(AppConfig)
	serve.Init(AppConfig)
	version.Init(AppConfig)
}
