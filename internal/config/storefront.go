package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// StorefrontConfig holds the checkout policy knobs that operators tune
// without redeploying: currency, per-line quantity bounds, the service fee,
// and the redirect destinations handed to the payment provider.
type StorefrontConfig struct {
	Currency            string `mapstructure:"currency"`
	MinLineQuantity     int    `mapstructure:"minLineQuantity"`
	MaxLineQuantity     int    `mapstructure:"maxLineQuantity"`
	ServiceFeeBasisPts  int64  `mapstructure:"serviceFeeBasisPts"`
	CheckoutSuccessURL  string `mapstructure:"checkoutSuccessUrl"`
	CheckoutCancelURL   string `mapstructure:"checkoutCancelUrl"`
	SessionExpiryMinute int    `mapstructure:"sessionExpiryMinute"`
}

func DefaultStorefrontConfig() StorefrontConfig {
	return StorefrontConfig{
		Currency:            "USD",
		MinLineQuantity:     1,
		MaxLineQuantity:     20,
		ServiceFeeBasisPts:  500,
		CheckoutSuccessURL:  "http://localhost:3000/orders/{ORDER_ID}/success",
		CheckoutCancelURL:   "http://localhost:3000/orders/{ORDER_ID}/cancelled",
		SessionExpiryMinute: 30,
	}
}

type StorefrontConfigHolder struct {
	current atomic.Value // holds StorefrontConfig
}

func NewStorefrontConfigHolder() (*StorefrontConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("storefront")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/stagepass/config")
	v.AddConfigPath("/etc/stagepass")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STAGEPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultStorefrontConfig()
	v.SetDefault("storefront.currency", defaults.Currency)
	v.SetDefault("storefront.minLineQuantity", defaults.MinLineQuantity)
	v.SetDefault("storefront.maxLineQuantity", defaults.MaxLineQuantity)
	v.SetDefault("storefront.serviceFeeBasisPts", defaults.ServiceFeeBasisPts)
	v.SetDefault("storefront.checkoutSuccessUrl", defaults.CheckoutSuccessURL)
	v.SetDefault("storefront.checkoutCancelUrl", defaults.CheckoutCancelURL)
	v.SetDefault("storefront.sessionExpiryMinute", defaults.SessionExpiryMinute)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg StorefrontConfig
	if err := v.UnmarshalKey("storefront", &cfg); err != nil {
		return nil, err
	}
	if err := validateStorefrontConfig(cfg); err != nil {
		return nil, err
	}

	holder := &StorefrontConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated StorefrontConfig
		if err := v.UnmarshalKey("storefront", &updated); err != nil {
			log.Printf("[storefront-config] reload failed: %v", err)
			return
		}
		if err := validateStorefrontConfig(updated); err != nil {
			log.Printf("[storefront-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[storefront-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticStorefrontConfigHolder wraps a fixed config with no file watch.
func NewStaticStorefrontConfigHolder(cfg StorefrontConfig) *StorefrontConfigHolder {
	holder := &StorefrontConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// SessionExpiry returns how long a pending order waits for payment.
func (c StorefrontConfig) SessionExpiry() time.Duration {
	if c.SessionExpiryMinute < 1 {
		return 30 * time.Minute
	}
	return time.Duration(c.SessionExpiryMinute) * time.Minute
}

func (h *StorefrontConfigHolder) Get() StorefrontConfig {
	return h.current.Load().(StorefrontConfig)
}

func validateStorefrontConfig(cfg StorefrontConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("storefront.currency cannot be empty")
	}
	if cfg.MinLineQuantity < 1 {
		return errors.New("storefront.minLineQuantity must be at least 1")
	}
	if cfg.MaxLineQuantity < cfg.MinLineQuantity {
		return errors.New("storefront.maxLineQuantity must be >= minLineQuantity")
	}
	if cfg.ServiceFeeBasisPts < 0 {
		return errors.New("storefront.serviceFeeBasisPts cannot be negative")
	}
	if strings.TrimSpace(cfg.CheckoutSuccessURL) == "" || strings.TrimSpace(cfg.CheckoutCancelURL) == "" {
		return errors.New("storefront checkout redirect urls cannot be empty")
	}
	return nil
}
