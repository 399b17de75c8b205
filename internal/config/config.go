// Package config loads the engine's runtime configuration from YAML,
// with environment overrides for deployment-sensitive values.
//
// Ratios are written as decimal strings in YAML ("0.10", not 0.1) and
// parsed exactly; float64 never touches a monetary parameter.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Port           int    `yaml:"port"`
	DatabaseURL    string `yaml:"databaseURL"`
	RedisURL       string `yaml:"redisURL"`
	SettlementDecimals int32 `yaml:"settlementDecimals"`

	Margin  MarginConfig  `yaml:"margin"`
	Funding FundingConfig `yaml:"funding"`
	Fees    FeeConfig     `yaml:"fees"`

	// Parsed forms of the string ratio fields, populated by Load.
	Parsed ParsedRatios `yaml:"-"`
}

// MarginConfig gates position opening and liquidation.
type MarginConfig struct {
	IMRatio                 string `yaml:"imRatio"`
	MMRatio                 string `yaml:"mmRatio"`
	LiquidationPenaltyRatio string `yaml:"liquidationPenaltyRatio"`
	PartialCloseRatio       string `yaml:"partialCloseRatio"`
	TwapIntervalSeconds     int    `yaml:"twapIntervalSeconds"`
}

// FundingConfig controls the funding schedule.
type FundingConfig struct {
	PeriodSeconds int `yaml:"periodSeconds"`
}

// FeeConfig holds the protocol-side fee split.
type FeeConfig struct {
	InsuranceFundFeeRatio string `yaml:"insuranceFundFeeRatio"`
}

// ParsedRatios carries the decimal forms of every string ratio.
type ParsedRatios struct {
	IMRatio                 decimal.Decimal
	MMRatio                 decimal.Decimal
	LiquidationPenaltyRatio decimal.Decimal
	PartialCloseRatio       decimal.Decimal
	InsuranceFundFeeRatio   decimal.Decimal
}

// FundingPeriod returns the configured period as a duration.
func (c AppConfig) FundingPeriod() time.Duration {
	return time.Duration(c.Funding.PeriodSeconds) * time.Second
}

// TwapInterval returns the margin valuation TWAP window.
func (c AppConfig) TwapInterval() time.Duration {
	return time.Duration(c.Margin.TwapIntervalSeconds) * time.Second
}

// Load reads YAML config from path, parses ratios and validates.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.parseRatios(); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields
// from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("CLEARING_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("CLEARING_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	return cfg, Validate(cfg)
}

// Default returns the configuration used when no file is supplied.
func Default() AppConfig {
	cfg := AppConfig{
		Port:               8080,
		SettlementDecimals: 6,
		Margin: MarginConfig{
			IMRatio:                 "0.10",
			MMRatio:                 "0.0625",
			LiquidationPenaltyRatio: "0.025",
			PartialCloseRatio:       "0.25",
			TwapIntervalSeconds:     900,
		},
		Funding: FundingConfig{PeriodSeconds: 3600},
		Fees:    FeeConfig{InsuranceFundFeeRatio: "0.10"},
	}
	if err := cfg.parseRatios(); err != nil {
		panic(err)
	}
	return cfg
}

func (c *AppConfig) parseRatios() error {
	parse := func(name, s string, dst *decimal.Decimal) error {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", name, s, err)
		}
		*dst = d
		return nil
	}
	if err := parse("margin.imRatio", c.Margin.IMRatio, &c.Parsed.IMRatio); err != nil {
		return err
	}
	if err := parse("margin.mmRatio", c.Margin.MMRatio, &c.Parsed.MMRatio); err != nil {
		return err
	}
	if err := parse("margin.liquidationPenaltyRatio", c.Margin.LiquidationPenaltyRatio, &c.Parsed.LiquidationPenaltyRatio); err != nil {
		return err
	}
	if err := parse("margin.partialCloseRatio", c.Margin.PartialCloseRatio, &c.Parsed.PartialCloseRatio); err != nil {
		return err
	}
	if err := parse("fees.insuranceFundFeeRatio", c.Fees.InsuranceFundFeeRatio, &c.Parsed.InsuranceFundFeeRatio); err != nil {
		return err
	}
	return nil
}

// Validate ensures required fields are present and ratios are sane.
func Validate(cfg AppConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.New("port must be in 1..65535")
	}
	if cfg.SettlementDecimals < 0 || cfg.SettlementDecimals > 18 {
		return errors.New("settlementDecimals must be in 0..18")
	}
	one := decimal.NewFromInt(1)
	r := cfg.Parsed
	if !r.IMRatio.IsPositive() || r.IMRatio.GreaterThanOrEqual(one) {
		return errors.New("margin.imRatio must be in (0, 1)")
	}
	if !r.MMRatio.IsPositive() || r.MMRatio.GreaterThanOrEqual(r.IMRatio) {
		return errors.New("margin.mmRatio must be in (0, imRatio)")
	}
	if r.LiquidationPenaltyRatio.IsNegative() || r.LiquidationPenaltyRatio.GreaterThanOrEqual(one) {
		return errors.New("margin.liquidationPenaltyRatio must be in [0, 1)")
	}
	if !r.PartialCloseRatio.IsPositive() || r.PartialCloseRatio.GreaterThan(one) {
		return errors.New("margin.partialCloseRatio must be in (0, 1]")
	}
	if r.InsuranceFundFeeRatio.IsNegative() || r.InsuranceFundFeeRatio.GreaterThanOrEqual(one) {
		return errors.New("fees.insuranceFundFeeRatio must be in [0, 1)")
	}
	if cfg.Margin.TwapIntervalSeconds < 0 {
		return errors.New("margin.twapIntervalSeconds must be >= 0")
	}
	if cfg.Funding.PeriodSeconds <= 0 {
		return errors.New("funding.periodSeconds must be > 0")
	}
	return nil
}
