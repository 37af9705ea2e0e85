package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/animus-coder/contractfix/internal/config"
	"github.com/animus-coder/contractfix/internal/version"
)

// Options holds global CLI options.
type Options struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCmd constructs the base CLI command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:           "contractfix",
		Short:         "contractfix – contract-test repair agent",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Path to config file (default: contractfix.yaml in . or configs/)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Stream completions and log at debug level")

	cmd.AddCommand(NewRunCmd(opts))
	cmd.AddCommand(NewApplyCmd(opts))
	cmd.AddCommand(NewRollbackCmd(opts))
	cmd.AddCommand(NewDoctorCmd(opts))
	cmd.AddCommand(NewConfigCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig wraps config loading with shared options. overrides take
// precedence over environment and file values.
func loadConfig(opts *Options, overrides map[string]interface{}) (*config.Config, error) {
	if opts.Verbose {
		if overrides == nil {
			overrides = map[string]interface{}{}
		}
		overrides["agent.verbose"] = true
	}
	cfg, err := config.Load(opts.ConfigPath, overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
