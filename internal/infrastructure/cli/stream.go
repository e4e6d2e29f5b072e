package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/doeshing/toolgate/internal/app"
	"github.com/doeshing/toolgate/internal/domain"
	"github.com/doeshing/toolgate/internal/infrastructure/config"
)

// newStreamCommand serves hook events continuously: one JSON event per
// stdin line, one decision per stdout line. Configuration changes are
// picked up while the loop runs, swapping the judge backend in place.
func newStreamCommand(container *app.Container) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Assess hook events line by line from stdin",
		Long: "Reads line-delimited PreToolUse hook events from stdin and writes one\n" +
			"decision per line to stdout. Meant for wrappers that keep a single\n" +
			"toolgate process alive across many tool calls.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			g, ctx := errgroup.WithContext(ctx)

			watcher, err := config.NewWatcher(container.ConfigLoader, container.Logger)
			if err != nil {
				return fmt.Errorf("start config watcher: %w", err)
			}
			defer watcher.Close()
			g.Go(func() error {
				watcher.Run(ctx, func(cfg domain.Config) {
					container.Registry.Configure(cfg.Provider)
				})
				return nil
			})

			g.Go(func() error {
				defer cancel()
				return streamLoop(ctx, container.GateService.Assess, cmd.InOrStdin(), cmd.OutOrStdout(), raw)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print full assessments instead of hook responses")
	return cmd
}

type assessFunc func(context.Context, domain.HookEvent) (domain.Assessment, error)

func streamLoop(ctx context.Context, assess assessFunc, in io.Reader, out io.Writer, raw bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), domain.MaxHookInputBytes+1)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event domain.HookEvent
		if err := json.Unmarshal(line, &event); err != nil {
			if werr := writeDecision(out, raw, domain.Assessment{
				Result:   domain.FailureResult(fmt.Sprintf("decode hook input: %v", err), 0),
				Decision: domain.DecisionDeny,
			}, ""); werr != nil {
				return werr
			}
			continue
		}

		assessment, err := assess(ctx, event)
		if err != nil {
			assessment = domain.Assessment{
				Result:   domain.FailureResult(err.Error(), 0),
				Decision: domain.DecisionDeny,
			}
		}
		if err := writeDecision(out, raw, assessment, event.HookEventName); err != nil {
			return err
		}
	}
	return scanner.Err()
}
