package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ShadowAlejo/parqueadero/services/reconcile"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var nowFlag string

	cmd := &cobra.Command{
		Use:       "run <finalize|recompute>",
		Short:     "Run one pass and print its report",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(reconcile.PassFinalize), string(reconcile.PassRecompute)},
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := reconcile.ParsePass(args[0])
			if err != nil {
				return err
			}
			now := time.Now()
			if nowFlag != "" {
				if now, err = time.Parse(time.RFC3339, nowFlag); err != nil {
					return fmt.Errorf("invalid --now: %w", err)
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			report, runErr := a.service.Run(ctx, reconcile.Tick{Pass: pass, Now: now})
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&nowFlag, "now", "", "tick time as RFC3339 (defaults to the wall clock)")
	return cmd
}
