package currency

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BankerName      string `yaml:"banker_name"`
	MarketplaceName string `yaml:"marketplace_name"`

	PriceUpload       int64 `yaml:"price_upload"`
	PriceGroupCreate  int64 `yaml:"price_group_create"`
	PriceDirectoryFee int64 `yaml:"price_directory_fee"`

	// ClientPort is advertised to viewers that open the currency page.
	ClientPort int `yaml:"client_port"`

	Stipend StipendConfig `yaml:"stipend"`
}

type StipendConfig struct {
	Enabled bool          `yaml:"enabled"`
	Amount  int64         `yaml:"amount"`
	Every   time.Duration `yaml:"every"`
}

// Active reports whether stipends should be paid at all.
func (s StipendConfig) Active() bool { return s.Enabled && s.Amount > 0 }

// LoadConfig reads a currency.yaml. An empty path yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("currency.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("currency.yaml: %w", err)
	}
	return cfg, nil
}

func DefaultConfig() Config {
	return Config{
		BankerName:      "Banker",
		MarketplaceName: "Marketplace",
		Stipend: StipendConfig{
			Every: 7 * 24 * time.Hour,
		},
	}
}

func (c *Config) Normalize() {
	c.BankerName = strings.TrimSpace(c.BankerName)
	c.MarketplaceName = strings.TrimSpace(c.MarketplaceName)
	if c.BankerName == "" {
		c.BankerName = "Banker"
	}
	if c.MarketplaceName == "" {
		c.MarketplaceName = "Marketplace"
	}
	if c.Stipend.Every <= 0 {
		c.Stipend.Every = 7 * 24 * time.Hour
	}
}

func (c Config) Validate() error {
	if c.PriceUpload < 0 || c.PriceGroupCreate < 0 || c.PriceDirectoryFee < 0 {
		return fmt.Errorf("prices must not be negative")
	}
	if c.ClientPort < 0 || c.ClientPort > 65535 {
		return fmt.Errorf("client_port out of range: %d", c.ClientPort)
	}
	if c.Stipend.Amount < 0 {
		return fmt.Errorf("stipend.amount must not be negative")
	}
	if c.Stipend.Enabled && c.Stipend.Every < time.Minute {
		return fmt.Errorf("stipend.every must be at least 1m")
	}
	if c.BankerName == c.MarketplaceName {
		return fmt.Errorf("banker_name and marketplace_name must differ")
	}
	return nil
}
