package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/GlobalTax/Crmcapittal-sub010/examples"
)

func newInitCmd() *cobra.Command {
	var (
		example string
		output  string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example configuration file",
		Long: `Write one of the bundled example configurations. Without --output the
example is printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(example, output, force, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&example, "example", "minimal", fmt.Sprintf("Example to write %v", examples.Names()))
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func runInit(example, output string, force bool, out io.Writer) error {
	data, err := examples.Config(example)
	if err != nil {
		return err
	}
	if output == "" {
		_, err = out.Write(data)
		return err
	}

	output = filepath.Clean(output)
	if !force {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", output)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(output, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	_, err = fmt.Fprintf(out, "Wrote %s example to %s\n", example, output)
	return err
}
