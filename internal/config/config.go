package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrConfigurationMissing is returned by Validate when required keys are
// unset or malformed.
var ErrConfigurationMissing = errors.New("configuration missing")

// DefaultInputToken is the token spent by swaps when none is configured.
const DefaultInputToken = "0xec5dcb5dbf4b114c9d0f65bccab49ec54f6a0867"

// legacyEnv maps keys to the bare variable names older deployments export.
var legacyEnv = map[string]string{
	"private-key":  "PRIVATE_KEY",
	"rpc":          "RPC_PROVIDER",
	"router":       "ROUTER_V2_ADDRESS",
	"stable-token": "USDT_ADDRESS",
	"platform":     "PLATFORM_ADDRESS",
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL         string
	PrivateKey     string
	Owner          string
	Router         string
	StableToken    string
	InputToken     string
	Platform       string
	Slippage       decimal.Decimal
	Deadline       time.Duration
	GasLimit       uint64
	ApprovalPolicy string
	MaxRetries     int
	RetryBackoff   time.Duration
	ConfirmTimeout time.Duration
	Out            string
	PGDSN          string
	LogLevel       string
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := loadDotEnv(flags); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("SWAPPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "SWAPPAY_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetDefault("input-token", DefaultInputToken)
	v.SetDefault("slippage", "1")
	v.SetDefault("deadline", 20*time.Minute)
	v.SetDefault("gas-limit", uint64(0))
	v.SetDefault("approval-policy", "quoted")
	v.SetDefault("max-retries", 2)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("confirm-timeout", 10*time.Minute)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	slippage, err := decimal.NewFromString(strings.TrimSpace(v.GetString("slippage")))
	if err != nil {
		return Config{}, fmt.Errorf("slippage %q: %w", v.GetString("slippage"), err)
	}

	cfg := Config{
		RPCURL:         strings.TrimSpace(v.GetString("rpc")),
		PrivateKey:     strings.TrimSpace(v.GetString("private-key")),
		Owner:          strings.TrimSpace(v.GetString("owner")),
		Router:         strings.TrimSpace(v.GetString("router")),
		StableToken:    strings.TrimSpace(v.GetString("stable-token")),
		InputToken:     strings.TrimSpace(v.GetString("input-token")),
		Platform:       strings.TrimSpace(v.GetString("platform")),
		Slippage:       slippage,
		Deadline:       v.GetDuration("deadline"),
		GasLimit:       v.GetUint64("gas-limit"),
		ApprovalPolicy: v.GetString("approval-policy"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		ConfirmTimeout: v.GetDuration("confirm-timeout"),
		Out:            v.GetString("out"),
		PGDSN:          v.GetString("pg-dsn"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}

// loadDotEnv loads .env, or the file named by --env-file. A missing default
// file is fine; a missing explicit one is not.
func loadDotEnv(flags *pflag.FlagSet) error {
	path := ".env"
	explicit := false
	if flags != nil && flags.Lookup("env-file") != nil {
		if value, err := flags.GetString("env-file"); err == nil && value != "" {
			path = value
			explicit = flags.Changed("env-file")
		}
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Scope selects which keys a command needs.
type Scope int

const (
	// ScopeReceipt needs only an RPC endpoint.
	ScopeReceipt Scope = iota
	// ScopeQuote needs the router and both tokens.
	ScopeQuote
	// ScopeAccount additionally needs an owner or a signing key.
	ScopeAccount
	// ScopeWrite needs a signing key and the platform address.
	ScopeWrite
)

var validate = validator.New()

// Validate reports every missing or malformed key for scope in one error
// wrapping ErrConfigurationMissing.
func (c Config) Validate(scope Scope) error {
	var problems []string
	check := func(key, value, tag string) {
		err := validate.Var(value, tag)
		if err == nil {
			return
		}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 && fieldErrs[0].Tag() != "required" {
			problems = append(problems, fmt.Sprintf("%s: invalid %s %s", key, describeTag(fieldErrs[0].Tag()), value))
			return
		}
		problems = append(problems, key+" is required")
	}
	require := func(key, value string) { check(key, value, "required") }
	address := func(key, value string) { check(key, value, "required,eth_addr") }

	require("rpc", c.RPCURL)
	if scope >= ScopeQuote {
		address("router", c.Router)
		address("stable-token", c.StableToken)
		address("input-token", c.InputToken)
		if c.Slippage.IsNegative() {
			problems = append(problems, "slippage must not be negative")
		}
	}
	if scope == ScopeAccount && c.PrivateKey == "" {
		address("owner", c.Owner)
	}
	if scope == ScopeWrite {
		require("private-key", c.PrivateKey)
		address("platform", c.Platform)
		if c.Deadline <= 0 {
			problems = append(problems, "deadline must be positive")
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(problems, "; "))
}

func describeTag(tag string) string {
	if tag == "eth_addr" {
		return "address"
	}
	return tag
}

// ParseAddress converts a validated hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}
