package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/xroute/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a routing file and build every sink it declares",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	f, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg, err := f.Build()
	if err != nil {
		return err
	}
	// Building may have opened files; release them.
	for _, s := range cfg.Sinks() {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d sinks, %d rules)\n", path, len(f.Sinks), len(f.Rules))
	return nil
}
