package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/doeshing/toolgate/internal/app"
)

func newConfigCommand(container *app.Container) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect toolgate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, container)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, container)
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), container.ConfigLoader.Path())
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := container.ConfigLoader.Load(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration valid")
			return nil
		},
	}

	configCmd.AddCommand(showCmd, pathCmd, validateCmd)
	return configCmd
}

func runConfigShow(cmd *cobra.Command, container *app.Container) error {
	cfg, err := container.ConfigLoader.Load(cmd.Context())
	if err != nil {
		return err
	}
	// The system prompt is long; elide it from the overview.
	if len(cfg.Provider.SystemPrompt) > 80 {
		cfg.Provider.SystemPrompt = cfg.Provider.SystemPrompt[:77] + "..."
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
