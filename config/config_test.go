package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultTAKPort, cfg.TAK.Port)
	assert.Equal(t, DefaultCallsign, cfg.TAK.Callsign)
	assert.Equal(t, DefaultPushInterval, cfg.TAK.PushInterval())
	assert.Equal(t, StorageModeMemory, cfg.Storage.Mode)
	assert.Equal(t, DefaultAPIPort, cfg.API.Port)
	assert.False(t, cfg.TAK.Enabled(), "bridge is opt-in")
	assert.NoError(t, cfg.Validate())
}

func TestTAKEnabled(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.TAK.Enabled())

	cfg.TAK.Host = "tak.example.mil"
	assert.True(t, cfg.TAK.Enabled())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.TAK.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsHalfClientCert(t *testing.T) {
	cfg := Default()
	cfg.TAK.CertFile = "client.pem"
	assert.Error(t, cfg.Validate())

	cfg.TAK.KeyFile = "client.key"
	assert.NoError(t, cfg.Validate())
}

func TestValidateKVRequiresNATS(t *testing.T) {
	cfg := Default()
	cfg.Storage.Mode = StorageModeKV
	cfg.Storage.Bucket = "tracks"
	assert.Error(t, cfg.Validate())

	cfg.NATS.URL = "nats://localhost:4222"
	assert.NoError(t, cfg.Validate())
}

func TestValidateUnknownStorageMode(t *testing.T) {
	cfg := Default()
	cfg.Storage.Mode = "postgres"
	assert.Error(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "1.0.0",
		"platform": {"name": "cop-east"},
		"tak": {"host": "10.0.0.5", "port": 8089, "tls": true, "callsign": "COP-EAST"},
		"storage": {"mode": "sqlite", "path": "/tmp/cop.db"}
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cop-east", cfg.Platform.Name)
	assert.Equal(t, "10.0.0.5", cfg.TAK.Host)
	assert.Equal(t, 8089, cfg.TAK.Port)
	assert.True(t, cfg.TAK.TLS)
	assert.Equal(t, "COP-EAST", cfg.TAK.Callsign)
	assert.Equal(t, StorageModeSQLite, cfg.Storage.Mode)
	// Defaults still fill the rest
	assert.Equal(t, DefaultAPIPort, cfg.API.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TAK_HOST", "override.example.mil")
	t.Setenv("TAK_PORT", "9000")
	t.Setenv("TAK_TLS", "true")
	t.Setenv("TAK_PUSH_INTERVAL", "45")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "override.example.mil", cfg.TAK.Host)
	assert.Equal(t, 9000, cfg.TAK.Port)
	assert.True(t, cfg.TAK.TLS)
	assert.Equal(t, 45*time.Second, cfg.TAK.PushInterval())
}

func TestClone(t *testing.T) {
	cfg := Default()
	cfg.TAK.Host = "original"

	clone := cfg.Clone()
	clone.TAK.Host = "modified"

	assert.Equal(t, "original", cfg.TAK.Host)
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(Default())

	got := sc.Get()
	got.TAK.Host = "mutated-copy"
	assert.Empty(t, sc.Get().TAK.Host, "Get returns copies")

	updated := Default()
	updated.TAK.Host = "tak.example.mil"
	require.NoError(t, sc.Update(updated))
	assert.Equal(t, "tak.example.mil", sc.Get().TAK.Host)

	bad := Default()
	bad.Storage.Mode = "bogus"
	assert.Error(t, sc.Update(bad))
	assert.Error(t, sc.Update(nil))
}
