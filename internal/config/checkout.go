package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CheckoutConfig carries the fallback checkout settings used when a store
// leaves a field unset.
type CheckoutConfig struct {
	ExpirationMinutes          int     `mapstructure:"expirationMinutes"`
	UnderpaidPercentage        float64 `mapstructure:"underpaidPercentage"`
	TransactionSpeed           int     `mapstructure:"transactionSpeed"`
	RecommendedFeeTargetBlocks int     `mapstructure:"recommendedFeeTargetBlocks"`
	RateRules                  string  `mapstructure:"rateRules"`
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		ExpirationMinutes:          15,
		UnderpaidPercentage:        0,
		TransactionSpeed:           1,
		RecommendedFeeTargetBlocks: 1,
	}
}

type CheckoutConfigHolder struct {
	current atomic.Value // holds CheckoutConfig
}

func NewCheckoutConfigHolder() (*CheckoutConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/coinflow/config")
	v.AddConfigPath("/etc/coinflow")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COINFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultCheckoutConfig()
		v.SetDefault("checkout.expirationMinutes", defaults.ExpirationMinutes)
		v.SetDefault("checkout.underpaidPercentage", defaults.UnderpaidPercentage)
		v.SetDefault("checkout.transactionSpeed", defaults.TransactionSpeed)
		v.SetDefault("checkout.recommendedFeeTargetBlocks", defaults.RecommendedFeeTargetBlocks)
		v.SetDefault("checkout.rateRules", defaults.RateRules)
	}

	var cfg CheckoutConfig
	if err := v.UnmarshalKey("checkout", &cfg); err != nil {
		return nil, err
	}
	if err := validateCheckoutConfig(cfg); err != nil {
		return nil, err
	}

	holder := &CheckoutConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CheckoutConfig
		if err := v.UnmarshalKey("checkout", &updated); err != nil {
			log.Printf("[checkout-config] reload failed: %v", err)
			return
		}
		if err := validateCheckoutConfig(updated); err != nil {
			log.Printf("[checkout-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[checkout-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *CheckoutConfigHolder) Get() CheckoutConfig {
	return h.current.Load().(CheckoutConfig)
}

func validateCheckoutConfig(cfg CheckoutConfig) error {
	if cfg.ExpirationMinutes <= 0 {
		return errors.New("checkout.expirationMinutes must be positive")
	}
	if cfg.UnderpaidPercentage < 0 || cfg.UnderpaidPercentage >= 100 {
		return errors.New("checkout.underpaidPercentage must be in [0, 100)")
	}
	if cfg.TransactionSpeed < 0 {
		return errors.New("checkout.transactionSpeed cannot be negative")
	}
	return nil
}
