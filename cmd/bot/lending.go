package bot

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/flashloan/aave"
	"github.com/michaelpento.lv/flasharb/simulator"
	"github.com/michaelpento.lv/flasharb/types"
)

func newLendingPool(cc *config.ChainConfig, ch *chain, privateKey string, logger *zap.Logger) (*aave.AaveProvider, error) {
	if cc == nil {
		return nil, fmt.Errorf("%w: chain %s has no config entry", types.ErrConfiguration, ch.info.Name)
	}
	key, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(ch.info.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	poolCfg := lendingPoolConfig(cc, auth.From)
	logger.Info("Using lending pool",
		zap.String("chain", ch.info.Name),
		zap.String("pool", poolCfg.LendingPool.Hex()),
		zap.String("receiver", poolCfg.Receiver.Hex()),
		zap.String("signer", auth.From.Hex()))

	return aave.NewAaveProvider(poolCfg, ch.client, auth, simulator.NewSimulator(ch.client, logger), logger)
}

// lendingPoolConfig reads the contract addresses of a chain. Profits go to
// the signer unless a recipient is configured.
func lendingPoolConfig(cc *config.ChainConfig, signer common.Address) aave.Config {
	cfg := aave.Config{
		LendingPool:     common.HexToAddress(cc.LendingPool),
		Receiver:        common.HexToAddress(cc.Receiver),
		ProfitRecipient: signer,
	}
	if cc.ProfitRecipient != "" {
		cfg.ProfitRecipient = common.HexToAddress(cc.ProfitRecipient)
	}
	return cfg
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("%w: %s_PRIVATE_KEY is required to execute", types.ErrConfiguration, config.EnvPrefix)
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key", types.ErrConfiguration)
	}
	return key, nil
}
