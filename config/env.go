package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment override, e.g. FLASHARB_NETWORK.
const EnvPrefix = "FLASHARB"

// EnvOverrides are the settings that may come from the environment or a .env file.
type EnvOverrides struct {
	ConfigPath         string   `envconfig:"CONFIG"`
	Debug              bool     `envconfig:"DEBUG" default:"false"`
	Network            string   `envconfig:"NETWORK"`
	MinProfitThreshold string   `envconfig:"MIN_PROFIT_THRESHOLD"`
	MaxGasPrice        string   `envconfig:"MAX_GAS_PRICE"`
	RedisAddr          string   `envconfig:"REDIS_ADDR"`
	PriceRedisAddr     string   `envconfig:"PRICE_REDIS_ADDR"`
	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS"`
}

// SecureConfig holds secrets that must never be written to the YAML file.
type SecureConfig struct {
	PrivateKey string `envconfig:"PRIVATE_KEY"`
}

// LoadEnv loads environment variables from .env file. A missing file is not an error.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// ReadEnv decodes the FLASHARB_* variables.
func ReadEnv() (*EnvOverrides, error) {
	var env EnvOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	return &env, nil
}

// ReadSecrets decodes the FLASHARB_PRIVATE_KEY style secrets.
func ReadSecrets() (*SecureConfig, error) {
	var sec SecureConfig
	if err := envconfig.Process(EnvPrefix, &sec); err != nil {
		return nil, fmt.Errorf("failed to process secrets: %w", err)
	}
	return &sec, nil
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config) error {
	env, err := ReadEnv()
	if err != nil {
		return err
	}
	env.apply(cfg)
	return nil
}

func (e *EnvOverrides) apply(cfg *Config) {
	if e.Network != "" {
		cfg.FlashLoan.Network = e.Network
	}
	if e.MinProfitThreshold != "" {
		cfg.FlashLoan.MinProfitThreshold = e.MinProfitThreshold
	}
	if e.MaxGasPrice != "" {
		cfg.FlashLoan.MaxGasPrice = e.MaxGasPrice
	}
	if e.RedisAddr != "" {
		cfg.Events.RedisAddr = e.RedisAddr
	}
	if e.PriceRedisAddr != "" {
		cfg.Scan.PriceRedisAddr = e.PriceRedisAddr
	}
	if len(e.KafkaBrokers) > 0 {
		cfg.Events.KafkaBrokers = e.KafkaBrokers
	}
}

