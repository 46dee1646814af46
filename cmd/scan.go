package cmd

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/multichain"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils"
	umath "github.com/michaelpento.lv/flasharb/utils/math"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one same-chain and cross-chain scan and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		defer utils.CleanupLogger()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := bot.New(cmd.Context(), cfg, bot.Options{}, log)
		if err != nil {
			return err
		}
		defer b.Stop()

		res, err := b.Scanner().ScanAll(cmd.Context())
		if err != nil {
			return err
		}
		return printScan(cmd.OutOrStdout(), b.Registry(), res)
	},
}

func printScan(out io.Writer, registry *config.Registry, res *multichain.ScanResult) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "SAME-CHAIN (%d)\n", len(res.SameChain))
	fmt.Fprintln(w, "CHAIN\tKIND\tASSET\tAMOUNT\tPROFIT\tVALUE\tCONF\tRISK\tLEGS")
	for _, o := range res.SameChain {
		symbol, decimals := tokenInfo(registry, o.ChainID, o)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%d\n",
			chainName(registry, o.ChainID),
			o.Kind,
			symbol,
			amount(o.Amount, decimals),
			amount(o.ExpectedProfit, decimals),
			humanize.CommafWithDigits(o.ProfitValue.InexactFloat64(), 2),
			o.Confidence,
			o.RiskLevel,
			o.Legs())
	}

	fmt.Fprintf(w, "\nCROSS-CHAIN (%d)\n", len(res.CrossChain))
	fmt.Fprintln(w, "FROM\tTO\tTOKEN\tBRIDGE\tDIFF\tPROFIT\tTIME\tRISK")
	for _, o := range res.CrossChain {
		var decimals uint8
		if base := registry.BaseToken(o.FromChain); base != nil {
			decimals = base.Decimals
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s%%\t%s\t%s\t%s\n",
			chainName(registry, o.FromChain),
			chainName(registry, o.ToChain),
			o.Token,
			o.Bridge,
			o.PriceDiff.Mul(decimal.NewFromInt(100)).StringFixed(2),
			amount(o.EstimatedProfit, decimals),
			o.ExecutionTime,
			o.RiskLevel)
	}
	return w.Flush()
}

func tokenInfo(registry *config.Registry, chainID uint64, o *types.ArbitrageOpportunity) (string, uint8) {
	if t := registry.Token(chainID, o.Asset); t != nil {
		return t.Symbol, t.Decimals
	}
	return o.Asset.Hex(), 0
}

func chainName(registry *config.Registry, id uint64) string {
	if ch := registry.Chain(id); ch != nil {
		return ch.Name
	}
	return fmt.Sprint(id)
}

// amount renders base units as whole tokens with thousands separators.
func amount(v *big.Int, decimals uint8) string {
	if v == nil {
		return "-"
	}
	return humanize.CommafWithDigits(umath.ToDecimal(v, decimals).InexactFloat64(), 4)
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
