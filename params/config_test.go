package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfigFromJSON(t *testing.T) {
	config, err := NewConfigFromJSON(`{
		"NetworkID": 1337,
		"AgreementAddress": "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"UpstreamConfig": {"URL": "https://rpc.example.org", "FallbackURL": "ws://localhost:8546", "RateLimit": 5, "Burst": 2},
		"Tx": {"PollInterval": "250ms", "FinalityTimeout": "1m", "RefreshRetries": 2, "RefreshInterval": 100000000}
	}`)
	require.NoError(t, err)
	require.Equal(t, uint64(1337), config.NetworkID)
	require.Equal(t, "https://rpc.example.org", config.UpstreamConfig.URL)
	require.Equal(t, 250*time.Millisecond, config.Tx.PollInterval.Duration())
	require.Equal(t, time.Minute, config.Tx.FinalityTimeout.Duration())
	require.Equal(t, 100*time.Millisecond, config.Tx.RefreshInterval.Duration())
	require.Equal(t, uint64(2), config.Tx.RefreshRetries)
	// untouched defaults survive
	require.Equal(t, 25, config.CircuitBreaker.ErrorPercentThreshold)
}

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name  string
		json  string
		error string
	}{
		{
			name:  "missing network id",
			json:  `{}`,
			error: "NetworkID",
		},
		{
			name:  "bad agreement address",
			json:  `{"NetworkID": 1, "AgreementAddress": "not-an-address"}`,
			error: "AgreementAddress",
		},
		{
			name:  "bad upstream scheme",
			json:  `{"NetworkID": 1, "UpstreamConfig": {"URL": "ftp://example.org"}}`,
			error: "UpstreamRPCConfig.URL",
		},
		{
			name:  "rate limit without burst",
			json:  `{"NetworkID": 1, "UpstreamConfig": {"URL": "http://localhost:8545", "RateLimit": 3, "Burst": 0}}`,
			error: "Burst",
		},
		{
			name:  "metrics without port",
			json:  `{"NetworkID": 1, "MetricsConfig": {"Enabled": true, "Port": 0}}`,
			error: "MetricsConfig.Port",
		},
		{
			name:  "unknown field",
			json:  `{"NetworkID": 1, "Bogus": true}`,
			error: "unknown field",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfigFromJSON(tc.json)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.error)
		})
	}
}

func TestLoadConfigFromFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	override := filepath.Join(dir, "override.json")
	require.NoError(t, os.WriteFile(base, []byte(`{"NetworkID": 5, "KeyStoreDir": "/tmp/ks"}`), 0600))
	require.NoError(t, os.WriteFile(override, []byte(`{"NetworkID": 11155111}`), 0600))

	config, err := LoadConfigFromFiles([]string{base, override})
	require.NoError(t, err)
	require.Equal(t, uint64(11155111), config.NetworkID)
	require.Equal(t, "/tmp/ks", config.KeyStoreDir)

	_, err = LoadConfigFromFiles([]string{filepath.Join(dir, "missing.json")})
	require.Error(t, err)
}

func TestIPCEndpointAccepted(t *testing.T) {
	config := NewConfig("/data", 1)
	config.UpstreamConfig.URL = "/data/geth.ipc"
	require.NoError(t, config.Validate())
	require.Equal(t, "/data/keystore", config.KeyStoreDir)
}
