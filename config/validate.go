package config

import (
	"fmt"
	"math"
	"net"
	"strings"
)

var validLogLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

// Validate checks the configuration for values the node cannot start with.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.RPCAddress); err != nil {
		return fmt.Errorf("RPCAddress: %w", err)
	}
	switch c.Storage.Backend {
	case BackendLevelDB, BackendMemory:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.CacheMB < 0 || c.Storage.Handles < 0 {
		return fmt.Errorf("storage: cache and handles must not be negative")
	}
	if c.Rent.LamportsPerByteYear == 0 || c.Rent.ExemptionYears == 0 {
		return fmt.Errorf("rent: lamports_per_byte_year and exemption_years must be positive")
	}
	if c.RPC.ReadHeaderTimeout < 0 || c.RPC.ReadTimeout < 0 || c.RPC.WriteTimeout < 0 || c.RPC.IdleTimeout < 0 {
		return fmt.Errorf("rpc: timeouts must not be negative")
	}
	if c.RPC.MaxBodyBytes <= 0 {
		return fmt.Errorf("rpc: max_body_bytes <= 0")
	}
	if c.RPC.RateLimitPerSec < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if (c.RPC.TLSCertFile == "") != (c.RPC.TLSKeyFile == "") {
		return fmt.Errorf("rpc: tls cert and key must be set together")
	}
	for _, proxy := range c.RPC.TrustedProxies {
		if net.ParseIP(strings.TrimSpace(proxy)) == nil {
			return fmt.Errorf("rpc: trusted proxy %q is not an IP address", proxy)
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 || math.IsNaN(c.Telemetry.SampleRatio) {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	if (c.Telemetry.Metrics || c.Telemetry.Traces) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: endpoint required when export is enabled")
	}
	if _, ok := validLogLevels[c.Logging.Level]; !ok {
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	if strings.TrimSpace(c.Webhooks.Endpoint) != "" {
		if strings.TrimSpace(c.Webhooks.SecretEnv) == "" {
			return fmt.Errorf("webhooks: secret_env required with an endpoint")
		}
		if c.Webhooks.MaxAttempts < 0 {
			return fmt.Errorf("webhooks: max_attempts must not be negative")
		}
	}
	switch c.Reporting.Driver {
	case ReportingSQLite, ReportingPostgres:
	default:
		return fmt.Errorf("reporting: unknown driver %q", c.Reporting.Driver)
	}
	if _, err := c.GenesisAllocations(); err != nil {
		return err
	}
	return nil
}
