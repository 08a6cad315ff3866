package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("saled", "test", Options{Level: "debug", Output: &buf})
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))) })

	logger.Debug("opened", slog.Uint64("slot", 7), MaskField("jwt", "secret-token"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "opened", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "saled", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, float64(7), line["slot"])
	require.Equal(t, RedactedValue, line["jwt"])
	require.Contains(t, line, "timestamp")
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("saled", "", Options{Level: "warn", Output: &buf})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestMasking(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("password", "hunter2").Value.String())
	require.Equal(t, "abc", MaskField("tx_hash", "abc").Value.String())
	require.Equal(t, " ", MaskField("password", " ").Value.String())
	require.Equal(t, "eyJh...9xYz", MaskToken("eyJhbGciOiJIUzI1NiJ9.body.sig9xYz"))
	require.Equal(t, RedactedValue, MaskToken("short"))
	require.Contains(t, RedactionAllowlist(), "tx_hash")
}
