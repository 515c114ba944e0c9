package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trickstertwo/xroute/config"
)

var rootCmd = &cobra.Command{
	Use:   "xroute",
	Short: "Inspect and exercise xroute routing files",
	Long: `xroute loads declarative log routing files (sinks and rules), checks them,
prints what they declare and can run a live session against them while
watching the file for changes.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "routing file (yaml, toml or json); env XROUTE_CONFIG")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	// e.g. XROUTE_RUN_INTERVAL for run.interval
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func configPath() (string, error) {
	p := viper.GetString("config")
	if p == "" {
		return "", errors.New("no routing file: pass --config or set XROUTE_CONFIG")
	}
	return p, nil
}
