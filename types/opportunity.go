package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// OpportunityKind names the discovery pass that produced a route.
type OpportunityKind string

const (
	KindDirect     OpportunityKind = "direct"
	KindTriangular OpportunityKind = "triangular"
	KindMultiHop   OpportunityKind = "multihop"
)

// Trade is a single swap leg of a route.
type Trade struct {
	DEX               string
	Router            common.Address
	Pool              common.Address
	FromToken         common.Address
	ToToken           common.Address
	AmountIn          *big.Int
	ExpectedAmountOut *big.Int
	FeeBps            int64
	Path              []common.Address
	Liquidity         *big.Int
}

// ArbitrageOpportunity is a closed cycle of trades returning to Asset.
type ArbitrageOpportunity struct {
	ID      string
	ChainID uint64
	Kind    OpportunityKind
	Asset   common.Address
	Amount  *big.Int
	Trades  []*Trade
	// ExpectedProfit is net of gas, in Asset base units.
	ExpectedProfit *big.Int
	// ProfitValue is ExpectedProfit valued in the chain base token.
	ProfitValue decimal.Decimal
	GasEstimate uint64
	// GasCost is the estimated gas spend converted into Asset base units.
	GasCost      *big.Int
	Confidence   int
	PriceDiffBps decimal.Decimal
	RiskLevel    RiskLevel
	Timestamp    time.Time
}

// Validate checks the route shape: at least two legs chained end to end
// and closing back on the first leg's input token.
func (o *ArbitrageOpportunity) Validate() error {
	if len(o.Trades) < 2 {
		return fmt.Errorf("route needs at least 2 legs, got %d", len(o.Trades))
	}
	for i := 1; i < len(o.Trades); i++ {
		if o.Trades[i].FromToken != o.Trades[i-1].ToToken {
			return fmt.Errorf("leg %d input %s does not match leg %d output %s",
				i, o.Trades[i].FromToken.Hex(), i-1, o.Trades[i-1].ToToken.Hex())
		}
	}
	first, last := o.Trades[0], o.Trades[len(o.Trades)-1]
	if last.ToToken != first.FromToken {
		return fmt.Errorf("route does not close: ends in %s, starts with %s",
			last.ToToken.Hex(), first.FromToken.Hex())
	}
	if o.Asset != first.FromToken {
		return fmt.Errorf("route asset %s does not match first leg input %s",
			o.Asset.Hex(), first.FromToken.Hex())
	}
	return nil
}

// Legs returns the number of swaps in the route.
func (o *ArbitrageOpportunity) Legs() int {
	return len(o.Trades)
}

// CrossChainOpportunity is a price gap for one token between two bridged chains.
type CrossChainOpportunity struct {
	ID              string
	FromChain       uint64
	ToChain         uint64
	Bridge          string
	Token           string
	BuyPrice        decimal.Decimal
	SellPrice       decimal.Decimal
	PriceDiff       decimal.Decimal
	Amount          *big.Int
	BridgeFee       *big.Int
	GasCost         *big.Int
	EstimatedProfit *big.Int
	ExecutionTime   time.Duration
	RiskLevel       RiskLevel
	RiskScore       int
	Timestamp       time.Time
}
