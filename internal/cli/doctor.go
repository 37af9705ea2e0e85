package cli

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/animus-coder/contractfix/internal/agent"
	"github.com/animus-coder/contractfix/internal/config"
	"github.com/animus-coder/contractfix/internal/llm/configbuilder"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, nil)
			if err != nil {
				return err
			}
			reg, err := configbuilder.BuildRegistryFromConfig(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "Repository: %s\n", cfg.Project.RepoRoot)
			fmt.Fprintf(out, "Models: %s (default %s)\n", strings.Join(reg.Models(), ", "), reg.DefaultModel())

			orch, err := agent.NewOrchestrator(reg, cfg)
			if err != nil {
				return err
			}
			for _, role := range config.Roles {
				route, err := orch.Route(role)
				if err != nil {
					return err
				}
				caps, err := orch.Capabilities(role)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %-10s -> %s (%s/%s) stream=%v fast=%v\n",
					role, route.Name, route.Provider, route.Model, caps.SupportsStreaming, caps.SupportsAuxFlags)
			}

			for _, bin := range []string{"git", cfg.Test.Command[0]} {
				path, err := exec.LookPath(bin)
				if err != nil {
					fmt.Fprintf(out, "%s %s: not found on PATH\n", statusLabel(out, false), bin)
					continue
				}
				fmt.Fprintf(out, "%s %s: %s\n", statusLabel(out, true), bin, path)
			}
			fmt.Fprintf(out, "Fast mode: %v, require diffs: %v, S3 mirror: %v\n",
				cfg.Agent.Fast, cfg.Agent.RequireDiffs, cfg.Artifacts.S3.Enabled)
			return nil
		},
	}
}
