package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils"
	umath "github.com/michaelpento.lv/flasharb/utils/math"
)

var (
	assessChain  string
	assessAsset  string
	assessAmount string
	assessRoute  bool
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Score the risk of borrowing an amount of an asset on a chain",
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

		registry := b.Registry()
		ch := chainByName(registry, assessChain)
		if ch == nil {
			return fmt.Errorf("%w: unknown chain %q", types.ErrConfiguration, assessChain)
		}
		token, err := resolveToken(registry, ch.ID, assessAsset)
		if err != nil {
			return err
		}
		whole, err := decimal.NewFromString(assessAmount)
		if err != nil || !whole.IsPositive() {
			return fmt.Errorf("%w: amount must be a positive number", types.ErrConfiguration)
		}
		amount := umath.FromDecimal(whole, token.Decimals)

		var route *types.ArbitrageOpportunity
		if assessRoute {
			route, err = b.Scanner().Finder(ch.ID).FindOptimalRoute(cmd.Context(), token.Address, amount)
			if err != nil {
				return err
			}
		}

		gate := b.Risk(ch.ID)
		a, err := gate.Assess(cmd.Context(), token.Address, amount, route)
		if err != nil {
			return err
		}
		printAssessment(cmd.OutOrStdout(), token, whole, route, a, gate.ShouldProceed(a))
		return nil
	},
}

func chainByName(registry *config.Registry, name string) *types.Chain {
	for i := range registry.Chains {
		if strings.EqualFold(registry.Chains[i].Name, name) {
			return &registry.Chains[i]
		}
	}
	return nil
}

// resolveToken accepts a configured symbol or a token address.
func resolveToken(registry *config.Registry, chainID uint64, asset string) (*types.Token, error) {
	if common.IsHexAddress(asset) {
		if t := registry.Token(chainID, common.HexToAddress(asset)); t != nil {
			return t, nil
		}
	} else if t := registry.TokenBySymbol(chainID, asset); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("%w: token %q is not configured on chain %d", types.ErrConfiguration, asset, chainID)
}

func printAssessment(out io.Writer, token *types.Token, whole decimal.Decimal, route *types.ArbitrageOpportunity, a *types.RiskAssessment, proceed bool) {
	fmt.Fprintf(out, "Asset:    %s (%s)\n", token.Symbol, token.Address.Hex())
	fmt.Fprintf(out, "Amount:   %s\n", whole.String())
	if route != nil {
		fmt.Fprintf(out, "Route:    %s, %d legs, profit %s\n", route.Kind, route.Legs(), amount(route.ExpectedProfit, token.Decimals))
	}
	fmt.Fprintf(out, "Score:    %d (%s)\n", a.Score, a.Level)
	fmt.Fprintf(out, "Proceed:  %t\n", proceed)
	for _, issue := range a.Issues {
		fmt.Fprintf(out, "  issue: %s\n", issue)
	}
	for _, rec := range a.Recommendations {
		fmt.Fprintf(out, "  recommendation: %s\n", rec)
	}
}

func init() {
	rootCmd.AddCommand(assessCmd)
	assessCmd.Flags().StringVar(&assessChain, "chain", "ethereum", "chain name")
	assessCmd.Flags().StringVar(&assessAsset, "asset", "WETH", "token symbol or address")
	assessCmd.Flags().StringVar(&assessAmount, "amount", "1", "amount in whole tokens")
	assessCmd.Flags().BoolVar(&assessRoute, "route", false, "also find and score the best route for the amount")
}
