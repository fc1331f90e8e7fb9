package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/psihotips/psihotips-ops/pkg/config"
	"github.com/psihotips/psihotips-ops/pkg/logger"
)

var (
	configFile string

	// Build information variables
	Version   = "dev"     // Default version for development
	GitCommit = "unknown" // Git commit hash
	BuildTime = "unknown" // Build timestamp
)

// printVersionInfo displays detailed version information
func printVersionInfo() {
	fmt.Printf("psihotips entrypoint (build %s)\n", Version)
	fmt.Printf("Built: %s, from commit: %s\n", BuildTime, GitCommit)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "psihotips-entrypoint",
	Short: "Startup gate for the psihotips bot database",
	Long: "Blocks until the bot's PostgreSQL database is reachable, repairs primary-key columns " +
		"left with unsupported auto-increment defaults, loads the declared schema on an empty " +
		"database, and then hands control to the bot application.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Lookup("version").Changed {
			printVersionInfo()
			return nil
		}
		return runGate(cmd.Context(), args)
	},
}

func newGate() (*gate, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return &gate{
		cfg: cfg,
		log: logger.New("entrypoint", Version),
	}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "Path to config file")
	rootCmd.Flags().Bool("version", false, "Show version information and exit")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Fatal paths already logged a leveled line; the exit code is the
		// supervisor-facing contract.
		os.Exit(1)
	}
}
