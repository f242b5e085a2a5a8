// Package cli wires the cobra command tree around the app assembly.
package cli

import (
	"github.com/spf13/cobra"

	"instapost/internal/app"
)

var (
	cfgPath string
	envFile string
)

// Root builds the base command with every subcommand registered.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "instapost",
		Short: "Scheduled Instagram publishing from a watch folder",
		Long: `instapost watches a folder for images, assigns each one a slot in a
weekly posting schedule, and publishes due entries to Instagram via
upload-then-post. Credentials come from the environment (or an env file);
everything else comes from the config document.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.json", "path to config document (json or yaml)")
	root.PersistentFlags().StringVar(&envFile, "env", "", "env file with credentials (default: .env if present)")

	root.AddCommand(runCmd())
	root.AddCommand(schedulerCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(moverCmd())
	root.AddCommand(scheduleCmd())
	root.AddCommand(queueCmd())
	root.AddCommand(cancelCmd())
	root.AddCommand(rescheduleCmd())
	root.AddCommand(rebalanceCmd())
	root.AddCommand(postCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(accountCmd())
	return root
}

// openApp builds the application from the persistent flags. Callers own the
// returned Close.
func openApp() (*app.App, error) {
	return app.New(cfgPath, envFile)
}
