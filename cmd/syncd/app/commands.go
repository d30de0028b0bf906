// Package app provides the commands of the syncd binary.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/versions"
)

const (
	defaultServerURL = "http://localhost:8080"

	flagConfig   = "config"
	flagServer   = "server"
	flagAPIToken = "api-token"
)

// NewRootCmd creates the root command with every subcommand attached.
// Flags can also be set with SYNCD_ environment variables (e.g. SYNCD_SERVER).
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "syncd",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Adaptive synchronization daemon",
		Long: `syncd keeps views of remote data sources fresh. It polls every configured
session at an interval that adapts to user engagement and backs off on errors,
and serves the session states over HTTP, WebSocket and NATS.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	global := newGlobalFlags()
	rootCmd.PersistentFlags().AddFlagSet(global)
	if err := v.BindPFlags(global); err != nil {
		slog.Error("Error binding flags", "error", err)
	}

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newStatusCmd(v))
	rootCmd.AddCommand(newWatchCmd(v))
	rootCmd.AddCommand(newTokenCmd(v))
	rootCmd.AddCommand(newValidateCmd(v))
	rootCmd.AddCommand(newInitCmd())

	return rootCmd
}

// newGlobalFlags holds the flags shared by every subcommand
func newGlobalFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	fs.String(flagConfig, "", "Path to the configuration file (default "+config.DefaultConfigPath()+")")
	fs.String(flagServer, defaultServerURL, "URL of a running daemon")
	fs.String(flagAPIToken, "", "Bearer token for the daemon API")
	return fs
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(out, string(output))
				return err
			}
			_, err = fmt.Fprintf(out, "syncd %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

// configPath returns the --config value or the default path
func configPath(v *viper.Viper) string {
	if p := v.GetString(flagConfig); p != "" {
		return p
	}
	return config.DefaultConfigPath()
}
