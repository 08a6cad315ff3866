package config

const (
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"

	ReportingSQLite   = "sqlite"
	ReportingPostgres = "postgres"
)

// Storage selects the key/value backend under DataDir.
type Storage struct {
	Backend string `toml:"Backend"`
	CacheMB int    `toml:"CacheMB"`
	Handles int    `toml:"Handles"`
}

// Rent sets the rent-exemption floor parameters.
type Rent struct {
	LamportsPerByteYear uint64 `toml:"LamportsPerByteYear"`
	ExemptionYears      uint64 `toml:"ExemptionYears"`
}

// RPC configures the JSON-RPC listener. Timeouts are in seconds.
type RPC struct {
	ReadHeaderTimeout int      `toml:"ReadHeaderTimeout"`
	ReadTimeout       int      `toml:"ReadTimeout"`
	WriteTimeout      int      `toml:"WriteTimeout"`
	IdleTimeout       int      `toml:"IdleTimeout"`
	MaxBodyBytes      int64    `toml:"MaxBodyBytes"`
	RateLimitPerSec   float64  `toml:"RateLimitPerSec"`
	RateLimitBurst    int      `toml:"RateLimitBurst"`
	TrustedProxies    []string `toml:"TrustedProxies"`
	TLSCertFile       string   `toml:"TLSCertFile"`
	TLSKeyFile        string   `toml:"TLSKeyFile"`
	// JWTSecretEnv names the environment variable holding the HMAC secret for
	// admin tokens. Airdrops are disabled when it is empty.
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	JWTIssuer    string `toml:"JWTIssuer"`
	MaxAirdrop   uint64 `toml:"MaxAirdrop"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	ServiceName string            `toml:"ServiceName"`
	Environment string            `toml:"Environment"`
	Endpoint    string            `toml:"Endpoint"`
	Insecure    bool              `toml:"Insecure"`
	Headers     map[string]string `toml:"Headers"`
	Metrics     bool              `toml:"Metrics"`
	Traces      bool              `toml:"Traces"`
	SampleRatio float64           `toml:"SampleRatio"`
}

// Logging configures the structured logger. An empty File logs to stdout.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Pauses lists modules whose state-changing instructions are rejected.
type Pauses struct {
	Crowdsale bool `toml:"Crowdsale"`
}

// GenesisAccount funds an address when the ledger is first created.
type GenesisAccount struct {
	Address  string `toml:"Address"`
	Lamports uint64 `toml:"Lamports"`
}

// Webhooks forwards committed events to an HTTP endpoint. Disabled when
// Endpoint is empty.
type Webhooks struct {
	Endpoint      string   `toml:"Endpoint"`
	SecretEnv     string   `toml:"SecretEnv"`
	EventPrefixes []string `toml:"EventPrefixes"`
	MaxAttempts   int      `toml:"MaxAttempts"`
}

// Reporting mirrors committed sale activity into a SQL database for
// aggregate queries. Disabled when DSN is empty; a relative SQLite path is
// resolved under DataDir.
type Reporting struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}
