package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/flasharb/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and report which secrets are set",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		secrets, err := config.ReadSecrets()
		if err != nil {
			return err
		}
		return printCheck(cmd.OutOrStdout(), cfg, secrets)
	},
}

func printCheck(out io.Writer, cfg *config.Config, secrets *config.SecureConfig) error {
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Config version:   %d\n", cfg.Version)
	fmt.Fprintf(out, "Network:          %s\n", cfg.FlashLoan.Network)
	fmt.Fprintf(out, "Private key:      %s\n", presence(secrets.PrivateKey))
	fmt.Fprintf(out, "Redis events:     %s\n", presence(cfg.Events.RedisAddr))
	fmt.Fprintf(out, "Kafka events:     %d brokers\n", len(cfg.Events.KafkaBrokers))
	fmt.Fprintf(out, "Price store:      %s\n", presence(cfg.Scan.PriceRedisAddr))
	fmt.Fprintln(out, "Chains:")
	for _, ch := range registry.Chains {
		cc := cfg.ChainByName(ch.Name)
		fmt.Fprintf(out, "  %-10s id=%-6d dexes=%d pools=%d tokens=%d lending_pool=%s receiver=%s\n",
			ch.Name, ch.ID,
			len(registry.DEXesOn(ch.ID)),
			len(registry.PoolsOn(ch.ID)),
			len(registry.ActiveTokens(ch.ID)),
			presence(cc.LendingPool),
			presence(cc.Receiver))
	}
	return nil
}

func presence(v string) string {
	if v == "" {
		return "not set"
	}
	return "set"
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
