package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "flasharb",
	Short: "A multi-chain flash loan arbitrage bot",
	Long: `A CLI bot that scans V2-style DEXes on several chains for price gaps,
scores each route against live chain conditions and executes the profitable
ones atomically through an Aave flash loan.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flasharb.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if env, err := config.ReadEnv(); err == nil {
		if cfgFile == "" {
			cfgFile = env.ConfigPath
		}
		debug = debug || env.Debug
	}
	utils.InitLogger(debug, utils.DefaultLogFile)
}

// loadConfig reads the config file. Without --config, a missing default
// file falls back to the built-in mainnet defaults.
func loadConfig() (*config.Config, error) {
	explicit := cfgFile != ""
	cfg, err := config.LoadConfig(cfgFile)
	if err == nil || explicit || !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}

	utils.GetLogger().Warn("No config file found, using defaults")
	cfg = config.DefaultConfig()
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}
