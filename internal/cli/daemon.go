package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full daemon: publish loop, folder watcher and archive mover",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRole(func(ctx context.Context) error {
				a, err := openApp()
				if err != nil {
					return err
				}
				defer a.Close()
				return a.RunDaemon(ctx)
			})
		},
	}
}

func schedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run only the publish loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRole(func(ctx context.Context) error {
				a, err := openApp()
				if err != nil {
					return err
				}
				defer a.Close()
				return a.RunScheduler(ctx)
			})
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run only the watch-folder ingester",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRole(func(ctx context.Context) error {
				a, err := openApp()
				if err != nil {
					return err
				}
				defer a.Close()
				return a.RunWatch(ctx)
			})
		},
	}
}

func moverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mover",
		Short: "Run only the archive mover",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRole(func(ctx context.Context) error {
				a, err := openApp()
				if err != nil {
					return err
				}
				defer a.Close()
				return a.RunMover(ctx)
			})
		},
	}
}

func runRole(fn func(ctx context.Context) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return fn(ctx)
}
