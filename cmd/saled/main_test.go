package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"salechain/config"
	"salechain/storage"
)

func TestRPCConfigConvertsSeconds(t *testing.T) {
	cfg := config.Default()
	cfg.RPC.ReadTimeout = 7
	cfg.RPC.TrustedProxies = []string{"10.1.1.1"}
	out := rpcConfig(cfg, "secret")
	require.Equal(t, 7*time.Second, out.ReadTimeout)
	require.Equal(t, "secret", out.JWTSecret)
	require.Equal(t, []string{"10.1.1.1"}, out.TrustedProxies)
}

func TestOpenDatabaseBackends(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendMemory
	db, err := openDatabase(cfg)
	require.NoError(t, err)
	_, ok := db.(*storage.MemDB)
	require.True(t, ok)
	db.Close()

	cfg.Storage.Backend = config.BackendLevelDB
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	db, err = openDatabase(cfg)
	require.NoError(t, err)
	defer db.Close()
	_, err = os.Stat(filepath.Join(cfg.DataDir, "ledger"))
	require.NoError(t, err)
}

func TestLookupSecret(t *testing.T) {
	t.Setenv("SALED_TEST_SECRET", "  value ")
	require.Equal(t, "value", lookupSecret("SALED_TEST_SECRET"))
	require.Empty(t, lookupSecret(""))
}

func TestReportingDSN(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/var/lib/saled"
	require.Empty(t, reportingDSN(cfg))

	cfg.Reporting.DSN = "reporting.db"
	require.Equal(t, filepath.Join("/var/lib/saled", "reporting.db"), reportingDSN(cfg))

	cfg.Reporting.DSN = "file::memory:?cache=shared"
	require.Equal(t, "file::memory:?cache=shared", reportingDSN(cfg))

	cfg.Reporting.Driver = config.ReportingPostgres
	cfg.Reporting.DSN = "postgres://sale@db/sale"
	require.Equal(t, "postgres://sale@db/sale", reportingDSN(cfg))
}
