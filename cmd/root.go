// Package cmd implements convoke's command-line surface: a spf13/cobra
// root command with broker/migrate/doctor subcommands, a persistent
// --config flag, and a package-level Version set via -ldflags.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// Version is set at build time via
// -ldflags "-X github.com/nextlevelbuilder/convoke/cmd.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "convoke",
	Short: "convoke — multi-participant agent session broker",
	Long: "convoke: a real-time coordination server for human-and-agent collaborative\n" +
		"sessions, gating irreversible agent actions behind configurable quorum approval.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBroker()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $CONVOKE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(brokerCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("convoke %s (protocol %d)\n", Version, protocol.SchemaVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("CONVOKE_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Execute runs the root cobra command; exit code is non-zero on any
// startup or runtime failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "convoke:", err)
		os.Exit(1)
	}
}
