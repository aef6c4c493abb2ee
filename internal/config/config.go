package config

import (
	"log"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "TRADEWATCH_CONFIG"

// Config holds high-level settings required across the application.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Quotes   QuotesConfig   `yaml:"quotes"`
	FEC      FECConfig      `yaml:"fec"`
	Sync     SyncConfig     `yaml:"sync"`
	Sites    []SiteConfig   `yaml:"sites"`
}

// DatabaseConfig locates the sqlite database file.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"TRADEWATCH_DB"`
}

// LoggingConfig controls console log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level" env:"TRADEWATCH_LOG_LEVEL"`
}

// QuotesConfig defines how to contact the historical quotes API.
type QuotesConfig struct {
	BaseURL          string `yaml:"baseUrl" env:"QUOTES_API_URL"`
	APIKey           string `yaml:"apiKey" env:"QUOTES_API_KEY"`
	Concurrency      int    `yaml:"concurrency"`
	BreakerThreshold int    `yaml:"breakerThreshold"`
}

// FECConfig defines how to contact the campaign-finance API.
type FECConfig struct {
	BaseURL          string `yaml:"baseUrl" env:"FEC_API_URL"`
	APIKey           string `yaml:"apiKey" env:"FEC_API_KEY"`
	Concurrency      int    `yaml:"concurrency"`
	BreakerThreshold int    `yaml:"breakerThreshold"`
	Cycle            int    `yaml:"cycle"`
}

// SyncConfig tunes sync and scan behavior.
type SyncConfig struct {
	// RecheckHours gates how soon a completed partition or cached
	// resolution is re-checked upstream.
	RecheckHours int `yaml:"recheckHours"`
	// SubIDPerCycle keys contribution dedup on (sub_id, cycle) instead of
	// sub_id alone; the regulator does not document whether sub_ids repeat
	// across election cycles, so this stays configurable.
	SubIDPerCycle bool `yaml:"subIdPerCycle"`
	// ScanLookbackDays bounds how far back a disclosure scan reaches.
	ScanLookbackDays int `yaml:"scanLookbackDays"`
}

// SiteConfig describes a single disclosure site with its scanner strategy.
type SiteConfig struct {
	Name    string            `yaml:"name"`
	Scanner string            `yaml:"scanner"`
	Pages   []PageConfig      `yaml:"pages"`
	Options map[string]string `yaml:"options"`
}

// PageConfig holds a concrete listing endpoint to crawl.
type PageConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides declared via env struct tags.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		log.Printf("config: environment overrides: %v", err)
	}

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultConfig().Sites
	}

	return cfg
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Quotes.BaseURL != "" {
		base.Quotes.BaseURL = override.Quotes.BaseURL
	}
	if override.Quotes.APIKey != "" {
		base.Quotes.APIKey = override.Quotes.APIKey
	}
	if override.Quotes.Concurrency > 0 {
		base.Quotes.Concurrency = override.Quotes.Concurrency
	}
	if override.Quotes.BreakerThreshold > 0 {
		base.Quotes.BreakerThreshold = override.Quotes.BreakerThreshold
	}

	if override.FEC.BaseURL != "" {
		base.FEC.BaseURL = override.FEC.BaseURL
	}
	if override.FEC.APIKey != "" {
		base.FEC.APIKey = override.FEC.APIKey
	}
	if override.FEC.Concurrency > 0 {
		base.FEC.Concurrency = override.FEC.Concurrency
	}
	if override.FEC.BreakerThreshold > 0 {
		base.FEC.BreakerThreshold = override.FEC.BreakerThreshold
	}
	if override.FEC.Cycle > 0 {
		base.FEC.Cycle = override.FEC.Cycle
	}

	if override.Sync.RecheckHours > 0 {
		base.Sync.RecheckHours = override.Sync.RecheckHours
	}
	if override.Sync.SubIDPerCycle {
		base.Sync.SubIDPerCycle = true
	}
	if override.Sync.ScanLookbackDays > 0 {
		base.Sync.ScanLookbackDays = override.Sync.ScanLookbackDays
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{Path: "tradewatch.db"},
		Logging:  LoggingConfig{Level: "info"},
		Quotes: QuotesConfig{
			BaseURL:          "https://quotes.example.org",
			Concurrency:      5,
			BreakerThreshold: 5,
		},
		FEC: FECConfig{
			BaseURL:          "https://api.open.fec.gov",
			Concurrency:      3,
			BreakerThreshold: 5,
			Cycle:            2026,
		},
		Sync: SyncConfig{
			RecheckHours:     24,
			SubIDPerCycle:    true,
			ScanLookbackDays: 30,
		},
		Sites: []SiteConfig{
			{
				Name:    "house-ptr",
				Scanner: "house",
				Pages: []PageConfig{
					{Name: "all", URL: "https://disclosures-clerk.house.gov/trades"},
				},
			},
		},
	}
}
