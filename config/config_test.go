package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultRPCAddress, cfg.RPCAddress)
	require.Equal(t, BackendLevelDB, cfg.Storage.Backend)
	require.Equal(t, uint64(3480), cfg.Rent.LamportsPerByteYear)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadParsesSections(t *testing.T) {
	funded := solana.NewWallet().PublicKey()
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCAddress = "127.0.0.1:9100"
DataDir = "/var/lib/saled"
NetworkName = "testnet"

[Storage]
Backend = "Memory"

[Rent]
LamportsPerByteYear = 10
ExemptionYears = 1

[RPC]
MaxBodyBytes = 4096
RateLimitPerSec = 5
RateLimitBurst = 10
TrustedProxies = ["10.0.0.1"]
JWTSecretEnv = "SALED_JWT_SECRET"
MaxAirdrop = 1000

[Telemetry]
ServiceName = "saled-test"
Endpoint = "localhost:4318"
Traces = true
SampleRatio = 0.5

[Logging]
Level = "DEBUG"

[Pauses]
Crowdsale = true

[Reporting]
Driver = "Postgres"
DSN = "postgres://sale@localhost/sale"

[[Genesis]]
Address = "` + funded.String() + `"
Lamports = 500

[[Genesis]]
Address = "` + funded.String() + `"
Lamports = 25
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9100", cfg.RPCAddress)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.Equal(t, uint64(10), cfg.Rent.LamportsPerByteYear)
	require.Equal(t, int64(4096), cfg.RPC.MaxBodyBytes)
	require.Equal(t, "SALED_JWT_SECRET", cfg.RPC.JWTSecretEnv)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Pauses.Crowdsale)
	require.Equal(t, 0.5, cfg.Telemetry.SampleRatio)
	require.Equal(t, ReportingPostgres, cfg.Reporting.Driver)
	// Unset keys keep their defaults.
	require.Equal(t, 15, cfg.RPC.ReadTimeout)

	allocs, err := cfg.GenesisAllocations()
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	require.Equal(t, funded, allocs[0].Address)
	require.Equal(t, uint64(525), allocs[0].Lamports)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("ValidatorKey = \"abc\"\n"), 0o644))
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "ValidatorKey") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad rpc address", func(c *Config) { c.RPCAddress = "nope" }, "RPCAddress"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "bolt" }, "unknown backend"},
		{"zero rent", func(c *Config) { c.Rent.ExemptionYears = 0 }, "rent"},
		{"zero body", func(c *Config) { c.RPC.MaxBodyBytes = 0 }, "max_body_bytes"},
		{"half tls", func(c *Config) { c.RPC.TLSCertFile = "cert.pem" }, "tls"},
		{"bad proxy", func(c *Config) { c.RPC.TrustedProxies = []string{"proxy.local"} }, "trusted proxy"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "sample_ratio"},
		{"export without endpoint", func(c *Config) { c.Telemetry.Metrics = true }, "endpoint"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging"},
		{"reporting driver", func(c *Config) { c.Reporting.Driver = "mysql" }, "reporting"},
		{"webhook secret", func(c *Config) { c.Webhooks.Endpoint = "http://hooks.local" }, "secret_env"},
		{"bad genesis address", func(c *Config) {
			c.Genesis = []GenesisAccount{{Address: "not-base58!", Lamports: 1}}
		}, "genesis[0]"},
		{"empty genesis amount", func(c *Config) {
			c.Genesis = []GenesisAccount{{Address: solana.NewWallet().PublicKey().String()}}
		}, "positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
	require.NoError(t, Default().Validate())
}
