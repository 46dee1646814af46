package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/flasharb/types"
)

// CurrentVersion is the registry table layout this build understands.
const CurrentVersion = 1

type Config struct {
	Version   int             `yaml:"version"`
	FlashLoan FlashLoanConfig `yaml:"flash_loan"`
	Chains    []ChainConfig   `yaml:"chains"`
	DEXes     []DEXConfig     `yaml:"dexes"`
	Bridges   []BridgeConfig  `yaml:"bridges"`
	Tokens    []TokenConfig   `yaml:"tokens"`
	Pools     []PoolConfig    `yaml:"pools"`
	Tables    TablesConfig    `yaml:"tables"`
	Risk      RiskConfig      `yaml:"risk"`
	Scan      ScanConfig      `yaml:"scan"`
	Events    EventsConfig    `yaml:"events"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type FlashLoanConfig struct {
	MaxLoanAmount       string   `yaml:"max_loan_amount"`
	MinProfitThreshold  string   `yaml:"min_profit_threshold"`
	MaxGasPrice         string   `yaml:"max_gas_price"`
	SlippageTolerance   string   `yaml:"slippage_tolerance"`
	MaxRetries          int      `yaml:"max_retries"`
	Network             string   `yaml:"network"`
	AutoExecuteFloor    string   `yaml:"auto_execute_floor"`
	ConfirmationTimeout Duration `yaml:"confirmation_timeout"`
	MonitorInterval     Duration `yaml:"monitor_interval"`
	ErrorBackoff        Duration `yaml:"error_backoff"`
	QueueInterval       Duration `yaml:"queue_interval"`
}

type ChainConfig struct {
	ID              uint64  `yaml:"id"`
	Name            string  `yaml:"name"`
	RPCEndpoint     string  `yaml:"rpc_endpoint"`
	NativeCurrency  string  `yaml:"native_currency"`
	BaseToken       string  `yaml:"base_token"`
	Maturity        int     `yaml:"maturity"`
	Competition     int     `yaml:"competition"`
	LendingPool     string  `yaml:"lending_pool"`
	Receiver        string  `yaml:"receiver"`
	ProfitRecipient string  `yaml:"profit_recipient"`
	QuotesPerSecond float64 `yaml:"quotes_per_second"`
}

type DEXConfig struct {
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
	ChainID      uint64 `yaml:"chain_id"`
	Router       string `yaml:"router"`
	Factory      string `yaml:"factory"`
	InitCodeHash string `yaml:"init_code_hash"`
	FeeBps       int64  `yaml:"fee_bps"`
	Weight       string `yaml:"weight"`
}

type BridgeConfig struct {
	Name            string   `yaml:"name"`
	Contract        string   `yaml:"contract"`
	SupportedChains []uint64 `yaml:"supported_chains"`
	Fee             string   `yaml:"fee"`
	Maturity        int      `yaml:"maturity"`
}

type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	ChainID  uint64 `yaml:"chain_id"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
	Active   bool   `yaml:"active"`
	// TradeSize is the notional used for discovery, in whole tokens.
	TradeSize string `yaml:"trade_size"`
}

type PoolConfig struct {
	DEX     string `yaml:"dex"`
	ChainID uint64 `yaml:"chain_id"`
	TokenA  string `yaml:"token_a"`
	TokenB  string `yaml:"token_b"`
}

// TablesConfig holds the static per-chain-pair lookups used by cross-chain discovery.
type TablesConfig struct {
	CrossChain []ChainPairConfig `yaml:"cross_chain"`
}

type ChainPairConfig struct {
	From          uint64   `yaml:"from"`
	To            uint64   `yaml:"to"`
	GasFactor     string   `yaml:"gas_factor"`
	ExecutionTime Duration `yaml:"execution_time"`
}

type RiskConfig struct {
	SampleInterval    Duration `yaml:"sample_interval"`
	HistorySize       int      `yaml:"history_size"`
	MaxMempoolSize    uint64   `yaml:"max_mempool_size"`
	MaxPriceImpact    string   `yaml:"max_price_impact"`
	MaxVolatility     string   `yaml:"max_volatility"`
	MaxBlockTime      Duration `yaml:"max_block_time"`
	MaxRouteLegs      int      `yaml:"max_route_legs"`
	LiquidityMultiple int64    `yaml:"liquidity_multiple"`
}

type ScanConfig struct {
	Interval          Duration `yaml:"interval"`
	PriceTTL          Duration `yaml:"price_ttl"`
	PriceCacheSize    int      `yaml:"price_cache_size"`
	DirectThreshold   string   `yaml:"direct_threshold_bps"`
	CrossChainMinDiff string   `yaml:"cross_chain_min_diff"`
	MinConfidence     int      `yaml:"min_confidence"`
	MinProfit         string   `yaml:"min_profit"`
	GasCeiling        uint64   `yaml:"gas_ceiling"`
	LiquidityFloor    string   `yaml:"liquidity_floor"` // base token whole units
	MaxHops           int      `yaml:"max_hops"`
	CrossChainAmount  string   `yaml:"cross_chain_amount"`
	// PriceRedisAddr enables the last-known price store used as oracle fallback.
	PriceRedisAddr   string   `yaml:"price_redis_addr"`
	PriceRedisPrefix string   `yaml:"price_redis_prefix"`
	PriceMaxAge      Duration `yaml:"price_max_age"`
}

type EventsConfig struct {
	BufferSize   int      `yaml:"buffer_size"`
	RedisAddr    string   `yaml:"redis_addr"`
	RedisStream  string   `yaml:"redis_stream"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

type MetricsConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	ReportInterval Duration `yaml:"report_interval"`
}

// Duration reads Go duration strings ("30s") from YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func (c *Config) ValidateConfig() error {
	var errors []string

	if c.Version != CurrentVersion {
		errors = append(errors, fmt.Sprintf("unsupported config version %d (want %d)", c.Version, CurrentVersion))
	}
	if len(c.Chains) == 0 {
		errors = append(errors, "at least one chain must be configured")
	}

	if err := c.FlashLoan.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("flash_loan: %v", err))
	}
	if c.FlashLoan.Network != "" && c.ChainByName(c.FlashLoan.Network) == nil {
		errors = append(errors, fmt.Sprintf("flash_loan.network %q is not a configured chain", c.FlashLoan.Network))
	}

	chains := make(map[uint64]bool, len(c.Chains))
	for _, ch := range c.Chains {
		if ch.ID == 0 || ch.Name == "" {
			errors = append(errors, "chain id and name must be specified")
			continue
		}
		if chains[ch.ID] {
			errors = append(errors, fmt.Sprintf("duplicate chain id %d", ch.ID))
		}
		chains[ch.ID] = true
		if ch.BaseToken == "" {
			errors = append(errors, fmt.Sprintf("chain %s: base_token must be specified", ch.Name))
		} else if c.token(ch.ID, ch.BaseToken) == nil {
			errors = append(errors, fmt.Sprintf("chain %s: base token %s is not in the token table", ch.Name, ch.BaseToken))
		}
		if !isAddress(ch.LendingPool, true) || !isAddress(ch.Receiver, true) || !isAddress(ch.ProfitRecipient, true) {
			errors = append(errors, fmt.Sprintf("chain %s: invalid contract address", ch.Name))
		}
	}

	dexesPerChain := make(map[uint64]int)
	for _, d := range c.DEXes {
		if !chains[d.ChainID] {
			errors = append(errors, fmt.Sprintf("dex %s: unknown chain %d", d.Name, d.ChainID))
		}
		if !isAddress(d.Router, false) || !isAddress(d.Factory, false) {
			errors = append(errors, fmt.Sprintf("dex %s: router and factory must be valid addresses", d.Name))
		}
		if d.FeeBps < 0 || d.FeeBps >= 10000 {
			errors = append(errors, fmt.Sprintf("dex %s: fee_bps out of range", d.Name))
		}
		if w, err := decimal.NewFromString(d.Weight); err != nil || !w.IsPositive() {
			errors = append(errors, fmt.Sprintf("dex %s: weight must be a positive number", d.Name))
		}
		dexesPerChain[d.ChainID]++
	}
	for id := range chains {
		if dexesPerChain[id] == 0 {
			errors = append(errors, fmt.Sprintf("chain %d has no dexes", id))
		}
	}

	for _, t := range c.Tokens {
		if !chains[t.ChainID] {
			errors = append(errors, fmt.Sprintf("token %s: unknown chain %d", t.Symbol, t.ChainID))
		}
		if !isAddress(t.Address, false) {
			errors = append(errors, fmt.Sprintf("token %s: invalid address", t.Symbol))
		}
		if t.TradeSize != "" {
			if _, err := decimal.NewFromString(t.TradeSize); err != nil {
				errors = append(errors, fmt.Sprintf("token %s: invalid trade_size", t.Symbol))
			}
		}
	}

	for _, p := range c.Pools {
		if c.dex(p.ChainID, p.DEX) == nil {
			errors = append(errors, fmt.Sprintf("pool %s/%s: unknown dex %s on chain %d", p.TokenA, p.TokenB, p.DEX, p.ChainID))
		}
		if c.token(p.ChainID, p.TokenA) == nil || c.token(p.ChainID, p.TokenB) == nil {
			errors = append(errors, fmt.Sprintf("pool %s/%s: unknown token on chain %d", p.TokenA, p.TokenB, p.ChainID))
		}
	}

	for _, b := range c.Bridges {
		if fee, err := decimal.NewFromString(b.Fee); err != nil || fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			errors = append(errors, fmt.Sprintf("bridge %s: fee must be a fraction in [0,1)", b.Name))
		}
		for _, id := range b.SupportedChains {
			if !chains[id] {
				errors = append(errors, fmt.Sprintf("bridge %s: unknown chain %d", b.Name, id))
			}
		}
		// every bridged pair needs a gas and execution time entry
		for i, from := range b.SupportedChains {
			for _, to := range b.SupportedChains[i+1:] {
				if c.chainPair(from, to) == nil {
					errors = append(errors, fmt.Sprintf("tables.cross_chain: missing entry for %d<->%d (bridge %s)", from, to, b.Name))
				}
			}
		}
	}
	for _, p := range c.Tables.CrossChain {
		if _, err := decimal.NewFromString(p.GasFactor); err != nil {
			errors = append(errors, fmt.Sprintf("tables.cross_chain %d->%d: invalid gas_factor", p.From, p.To))
		}
	}

	if err := c.Scan.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("scan: %v", err))
	}
	if err := c.Risk.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("risk: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%w: configuration validation failed: %s", types.ErrConfiguration, strings.Join(errors, "; "))
	}

	return nil
}

func (f *FlashLoanConfig) Validate() error {
	_, err := f.ToTypes()
	return err
}

// ToTypes parses the string amounts into the runtime flash loan config.
func (f *FlashLoanConfig) ToTypes() (*types.FlashLoanConfig, error) {
	maxLoan, err := parsePositiveInt("max_loan_amount", f.MaxLoanAmount)
	if err != nil {
		return nil, err
	}
	minProfit, err := parseAmount("min_profit_threshold", f.MinProfitThreshold)
	if err != nil {
		return nil, err
	}
	maxGas, err := parsePositiveInt("max_gas_price", f.MaxGasPrice)
	if err != nil {
		return nil, err
	}
	floor := minProfit
	if f.AutoExecuteFloor != "" {
		if floor, err = parseAmount("auto_execute_floor", f.AutoExecuteFloor); err != nil {
			return nil, err
		}
	}
	slippage := decimal.Zero
	if f.SlippageTolerance != "" {
		slippage, err = decimal.NewFromString(f.SlippageTolerance)
		if err != nil || slippage.IsNegative() || slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("slippage_tolerance must be a fraction in [0,1)")
		}
	}
	if f.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must not be negative")
	}
	if f.Network == "" {
		return nil, fmt.Errorf("network must be specified")
	}

	return &types.FlashLoanConfig{
		MaxLoanAmount:       maxLoan,
		MinProfitThreshold:  minProfit,
		MaxGasPrice:         maxGas,
		SlippageTolerance:   slippage,
		MaxRetries:          f.MaxRetries,
		Network:             f.Network,
		AutoExecuteFloor:    floor,
		ConfirmationTimeout: f.ConfirmationTimeout.Duration,
	}, nil
}

func (s *ScanConfig) Validate() error {
	if s.Interval.Duration <= 0 || s.PriceTTL.Duration <= 0 {
		return fmt.Errorf("interval and price_ttl must be positive")
	}
	if s.PriceCacheSize <= 0 {
		return fmt.Errorf("price_cache_size must be positive")
	}
	for name, v := range map[string]string{
		"direct_threshold_bps": s.DirectThreshold,
		"cross_chain_min_diff": s.CrossChainMinDiff,
		"min_profit":           s.MinProfit,
		"liquidity_floor":      s.LiquidityFloor,
		"cross_chain_amount":   s.CrossChainAmount,
	} {
		if _, err := decimal.NewFromString(v); err != nil {
			return fmt.Errorf("%s: %v", name, err)
		}
	}
	if s.MinConfidence < 0 || s.MinConfidence > 100 {
		return fmt.Errorf("min_confidence must be within [0,100]")
	}
	if s.PriceRedisAddr != "" && s.PriceRedisPrefix == "" {
		return fmt.Errorf("price_redis_prefix is required with price_redis_addr")
	}
	if s.PriceMaxAge.Duration < 0 {
		return fmt.Errorf("price_max_age must not be negative")
	}
	return nil
}

func (r *RiskConfig) Validate() error {
	if r.SampleInterval.Duration <= 0 {
		return fmt.Errorf("sample_interval must be positive")
	}
	if r.HistorySize <= 0 {
		return fmt.Errorf("history_size must be positive")
	}
	for name, v := range map[string]string{
		"max_price_impact": r.MaxPriceImpact,
		"max_volatility":   r.MaxVolatility,
	} {
		if _, err := decimal.NewFromString(v); err != nil {
			return fmt.Errorf("%s: %v", name, err)
		}
	}
	return nil
}

// ChainByName returns the chain with the given name, or nil.
func (c *Config) ChainByName(name string) *ChainConfig {
	for i := range c.Chains {
		if strings.EqualFold(c.Chains[i].Name, name) {
			return &c.Chains[i]
		}
	}
	return nil
}

func (c *Config) token(chainID uint64, symbol string) *TokenConfig {
	for i := range c.Tokens {
		if c.Tokens[i].ChainID == chainID && strings.EqualFold(c.Tokens[i].Symbol, symbol) {
			return &c.Tokens[i]
		}
	}
	return nil
}

func (c *Config) dex(chainID uint64, name string) *DEXConfig {
	for i := range c.DEXes {
		if c.DEXes[i].ChainID == chainID && strings.EqualFold(c.DEXes[i].Name, name) {
			return &c.DEXes[i]
		}
	}
	return nil
}

func (c *Config) chainPair(a, b uint64) *ChainPairConfig {
	for i := range c.Tables.CrossChain {
		p := &c.Tables.CrossChain[i]
		if (p.From == a && p.To == b) || (p.From == b && p.To == a) {
			return p
		}
	}
	return nil
}

func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".flasharb.yaml")
	}

	raw, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(cfgFile, out, 0o600)
}

func isAddress(s string, optional bool) bool {
	if s == "" {
		return optional
	}
	return common.IsHexAddress(s)
}

func parseInt(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid integer %q", name, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", name)
	}
	return v, nil
}

// parseAmount reads a non-negative decimal in whole token units.
func parseAmount(name, s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q", name, s)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", name)
	}
	return v, nil
}

func parsePositiveInt(name, s string) (*big.Int, error) {
	v, err := parseInt(name, s)
	if err != nil {
		return nil, err
	}
	if v.Sign() == 0 {
		return nil, fmt.Errorf("%s must be positive", name)
	}
	return v, nil
}
