package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "***"

// NewConfigCmd groups configuration inspection commands.
func NewConfigCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as YAML (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, nil)
			if err != nil {
				return err
			}
			for name, p := range cfg.Providers {
				if p.APIKey != "" {
					p.APIKey = redacted
					cfg.Providers[name] = p
				}
			}
			if cfg.Artifacts.S3.SecretKey != "" {
				cfg.Artifacts.S3.SecretKey = redacted
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(opts, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Config OK")
			return nil
		},
	})

	return cmd
}
