package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type VenueConfig struct {
	Name              string  `yaml:"name"`
	BaseURL           string  `yaml:"base_url"`
	KeyEnv            string  `yaml:"key_env"`
	SecretEnv         string  `yaml:"secret_env"`
	FeeRate           float64 `yaml:"fee_rate"`
	MinCallIntervalMS int     `yaml:"min_call_interval_ms"`
	AmountPrecision   int32   `yaml:"amount_precision"`
}

type Config struct {
	Mode   string `yaml:"mode"`
	Listen string `yaml:"listen"`

	Trade struct {
		QuoteAsset       string  `yaml:"quote_asset"`
		BudgetUSD        float64 `yaml:"budget_usd"`
		TimeBudgetSecs   float64 `yaml:"time_budget_secs"`
		PendingOrderSecs float64 `yaml:"pending_order_secs"`
		StopLossPct      float64 `yaml:"stop_loss_pct"`
		MaxAPIAttempts   int     `yaml:"max_api_attempts"`
	} `yaml:"trade"`

	Admission struct {
		VolumeThresholdUSD float64 `yaml:"volume_threshold_usd"`
		StaticProfitPct    float64 `yaml:"static_profit_pct"`
	} `yaml:"admission"`

	Engine struct {
		HousekeepingSecs int `yaml:"housekeeping_secs"`
	} `yaml:"engine"`

	Venues []VenueConfig `yaml:"venues"`

	Paths struct {
		CheckpointDir string `yaml:"checkpoint_dir"`
		LedgerDir     string `yaml:"ledger_dir"`
	} `yaml:"paths"`

	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notify"`

	BPI struct {
		URL string `yaml:"url"`
	} `yaml:"bpi"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Venues) == 0 {
		return fmt.Errorf("venues cannot be empty")
	}
	seen := map[string]bool{}
	for _, v := range c.Venues {
		if v.Name == "" {
			return fmt.Errorf("venue with empty name")
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate venue '%s'", v.Name)
		}
		seen[v.Name] = true
		if c.Mode == "LIVE" && v.BaseURL == "" {
			return fmt.Errorf("venue '%s': base_url required in LIVE mode", v.Name)
		}
		if v.FeeRate < 0 || v.FeeRate > 0.1 {
			return fmt.Errorf("venue '%s': fee_rate %.4f out of range [0, 0.1]", v.Name, v.FeeRate)
		}
	}
	if c.Trade.BudgetUSD <= 0 {
		return fmt.Errorf("trade.budget_usd must be positive, got %.2f", c.Trade.BudgetUSD)
	}
	if c.Trade.StopLossPct >= 0 {
		return fmt.Errorf("trade.stop_loss_pct must be negative, got %.2f", c.Trade.StopLossPct)
	}
	if c.Trade.MaxAPIAttempts <= 0 {
		return fmt.Errorf("trade.max_api_attempts must be positive, got %d", c.Trade.MaxAPIAttempts)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Trade.QuoteAsset == "" {
		c.Trade.QuoteAsset = "BTC"
	}
	if c.Trade.BudgetUSD == 0 {
		c.Trade.BudgetUSD = 10
	}
	if c.Trade.TimeBudgetSecs == 0 {
		c.Trade.TimeBudgetSecs = 86400
	}
	if c.Trade.PendingOrderSecs == 0 {
		c.Trade.PendingOrderSecs = 20
	}
	if c.Trade.StopLossPct == 0 {
		c.Trade.StopLossPct = -5
	}
	if c.Trade.MaxAPIAttempts == 0 {
		c.Trade.MaxAPIAttempts = 10
	}
	if c.Admission.VolumeThresholdUSD == 0 {
		c.Admission.VolumeThresholdUSD = 2000
	}
	if c.Engine.HousekeepingSecs == 0 {
		c.Engine.HousekeepingSecs = 43200
	}
	if c.Paths.CheckpointDir == "" {
		c.Paths.CheckpointDir = "data/checkpoints"
	}
	if c.Paths.LedgerDir == "" {
		c.Paths.LedgerDir = "data/ledger"
	}
	if c.BPI.URL == "" {
		c.BPI.URL = "https://api.coindesk.com/v1/bpi/currentprice.json"
	}
	for i := range c.Venues {
		if c.Venues[i].MinCallIntervalMS == 0 {
			c.Venues[i].MinCallIntervalMS = 1000
		}
		if c.Venues[i].AmountPrecision == 0 {
			c.Venues[i].AmountPrecision = 8
		}
	}
}

// Venue returns the config block for a venue by name.
func (c *Config) Venue(name string) (VenueConfig, bool) {
	for _, v := range c.Venues {
		if v.Name == name {
			return v, true
		}
	}
	return VenueConfig{}, false
}
