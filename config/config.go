package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultRPCAddress  = ":8080"
	DefaultDataDir     = "./sale-data"
	DefaultNetworkName = "sale-local"
)

// Config is the node configuration stored as TOML.
type Config struct {
	RPCAddress  string           `toml:"RPCAddress"`
	DataDir     string           `toml:"DataDir"`
	NetworkName string           `toml:"NetworkName"`
	Storage     Storage          `toml:"Storage"`
	Rent        Rent             `toml:"Rent"`
	RPC         RPC              `toml:"RPC"`
	Telemetry   Telemetry        `toml:"Telemetry"`
	Logging     Logging          `toml:"Logging"`
	Pauses      Pauses           `toml:"Pauses"`
	Webhooks    Webhooks         `toml:"Webhooks"`
	Reporting   Reporting        `toml:"Reporting"`
	Genesis     []GenesisAccount `toml:"Genesis"`
}

// Load loads the configuration from the given path. A default file is
// written when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		RPCAddress:  DefaultRPCAddress,
		DataDir:     DefaultDataDir,
		NetworkName: DefaultNetworkName,
		Storage:     Storage{Backend: BackendLevelDB, CacheMB: 16, Handles: 64},
		Rent:        Rent{LamportsPerByteYear: 3480, ExemptionYears: 2},
		RPC: RPC{
			ReadHeaderTimeout: 5,
			ReadTimeout:       15,
			WriteTimeout:      15,
			IdleTimeout:       60,
			MaxBodyBytes:      1 << 20,
			RateLimitPerSec:   20,
			RateLimitBurst:    40,
		},
		Telemetry: Telemetry{ServiceName: "saled", Environment: "dev", SampleRatio: 1},
		Logging:   Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		Reporting: Reporting{Driver: ReportingSQLite},
		Genesis:   []GenesisAccount{},
	}
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = DefaultNetworkName
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendLevelDB
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Reporting.Driver = strings.ToLower(strings.TrimSpace(c.Reporting.Driver))
	if c.Reporting.Driver == "" {
		c.Reporting.Driver = ReportingSQLite
	}
	if c.Genesis == nil {
		c.Genesis = []GenesisAccount{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
