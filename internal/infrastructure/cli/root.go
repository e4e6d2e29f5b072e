// Package cli wires the cobra command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/doeshing/toolgate/internal/app"
)

// Options holds CLI-level configuration.
type Options struct {
	ConfigPath string
	Verbose    bool
	Version    string
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(ctx context.Context, opts Options) (*cobra.Command, error) {
	container, err := app.BuildContainer(ctx, opts.ConfigPath, opts.Verbose)
	if err != nil {
		return nil, err
	}

	root := &cobra.Command{
		Use:     "toolgate",
		Short:   "toolgate - local safety gate for agent tool calls",
		Long:    "toolgate scores tool calls from coding agents with a configurable judge\nand answers allow, ask or deny before the call runs.",
		Version: opts.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return container.Close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newAnalyzeCommand(container))
	root.AddCommand(newStreamCommand(container))
	root.AddCommand(newSessionsCommand(container))
	root.AddCommand(newAuditCommand(container))
	root.AddCommand(newConfigCommand(container))
	root.AddCommand(newDoctorCommand(container))
	return root, nil
}
