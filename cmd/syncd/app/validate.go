package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GlobalTax/Crmcapittal-sub010/internal/config"
	"github.com/GlobalTax/Crmcapittal-sub010/internal/sync/coordinator"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file and print the resolved polling settings of
every session. Without an argument the --config path is validated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(v)
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(path, cmd.OutOrStdout())
		},
	}
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return fmt.Errorf("invalid configuration %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(out, "✓ Valid configuration\n")
	_, _ = fmt.Fprintf(out, "  Server address: %s\n", cfg.GetServerAddress())
	_, _ = fmt.Fprintf(out, "  Credentials: %s\n", cfg.GetCredentialsType())
	_, _ = fmt.Fprintf(out, "  State: %s\n", cfg.GetStateType())
	for _, sc := range cfg.Sessions {
		resolved, err := coordinator.ResolveSession(cfg.Defaults, sc)
		if err != nil {
			return fmt.Errorf("session %s: %w", sc.ID, err)
		}
		_, _ = fmt.Fprintf(out, "  Session %s: every %s (max %s, x%g on errors, pause mode %s)\n",
			resolved.ID, resolved.BaseInterval, resolved.MaxInterval, resolved.BackoffMultiplier, resolved.PauseMode)
	}
	return nil
}
