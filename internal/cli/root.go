// Package cli implements the marketplace command line: the API server, demo
// catalog seeding, and inspection of archived bulk operations.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/eshaffer321/marketplace-backend/internal/infrastructure/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	ConfigPath string
	EnvFile    string
	Verbose    bool
}

// app carries state resolved once in the root command's pre-run.
type app struct {
	flags globalFlags
	cfg   *config.Config
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "marketplace",
		Short:         "Marketplace backend: bulk product operations for vendors",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional; real environment variables win
			_ = godotenv.Load(a.flags.EnvFile)

			a.cfg = config.LoadOrEnvWithPath(a.flags.ConfigPath)
			if a.flags.Verbose {
				a.cfg.Observability.Logging.Level = "debug"
			}
			return a.cfg.Validate()
		},
	}

	cmd.PersistentFlags().StringVar(&a.flags.ConfigPath, "config", "config.yaml", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&a.flags.EnvFile, "env-file", ".env", "dotenv file loaded before config")
	cmd.PersistentFlags().BoolVarP(&a.flags.Verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(a),
		newSeedCmd(a),
		newBulkCmd(a),
	)

	return cmd
}
