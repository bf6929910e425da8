package tourcli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func neverChanged(string) bool { return false }

func Test_mergeSettings(t *testing.T) {
	t.Run("config values win over flag defaults", func(t *testing.T) {
		cfg := localConfig{
			Server:   "https://chat.example.com",
			NATSURL:  "nats://chat.example.com:4222",
			Identity: "alice",
			Token:    "stored-token",
		}
		s, err := mergeSettings(cfg, "/tmp/.tourdesk/config.yaml", defaultServer, defaultNATS, "", false, neverChanged)
		require.NoError(t, err)
		assert.Equal(t, "https://chat.example.com", s.Server)
		assert.Equal(t, "nats://chat.example.com:4222", s.NATSURL)
		assert.Equal(t, "alice", s.Identity)
		assert.Equal(t, "stored-token", s.Token)
		assert.Equal(t, "/tmp/.tourdesk", s.TourdeskDir)
	})

	t.Run("explicit flags win over config", func(t *testing.T) {
		cfg := localConfig{Server: "https://chat.example.com", Token: "stored-token"}
		changed := func(name string) bool { return name == "server" || name == "token" }
		s, err := mergeSettings(cfg, "", "http://localhost:9999", defaultNATS, "flag-token", false, changed)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9999", s.Server)
		assert.Equal(t, "flag-token", s.Token)
	})

	t.Run("env fills missing secret and token", func(t *testing.T) {
		t.Setenv("TOURDESK_JWT_SECRET", "env-secret")
		t.Setenv("TOURDESK_TOKEN", "env-token")
		s, err := mergeSettings(localConfig{}, "", defaultServer, defaultNATS, "", false, neverChanged)
		require.NoError(t, err)
		assert.Equal(t, "env-secret", s.JWTSecret)
		assert.Equal(t, "env-token", s.Token)
	})

	t.Run("pending timeout parsed", func(t *testing.T) {
		s, err := mergeSettings(localConfig{PendingTimeout: "30s"}, "", defaultServer, defaultNATS, "", false, neverChanged)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, s.PendingTimeout)

		_, err = mergeSettings(localConfig{PendingTimeout: "soon"}, "", defaultServer, defaultNATS, "", false, neverChanged)
		assert.Error(t, err)
	})

	t.Run("tracing from config unless flag set", func(t *testing.T) {
		yes := true
		s, err := mergeSettings(localConfig{Tracing: &yes}, "", defaultServer, defaultNATS, "", false, neverChanged)
		require.NoError(t, err)
		assert.True(t, s.Tracing)
	})
}

func Test_loadAndSaveLocalConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, path, err := loadLocalConfig()
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, cfg.Server)

	want := localConfig{
		Server:   "https://chat.example.com",
		Identity: "bob",
		Token:    "tok",
	}
	configPath := filepath.Join(dir, ".tourdesk", "config.yaml")
	require.NoError(t, saveLocalConfig(configPath, want))

	got, path, err := loadLocalConfig()
	require.NoError(t, err)
	assert.Equal(t, configPath, path)
	assert.Equal(t, want, got)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func Test_loadLocalConfigRejectsBrokenYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".tourdesk"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tourdesk", "config.yaml"), []byte("server: [broken"), 0600))

	_, _, err := loadLocalConfig()
	assert.Error(t, err)
}
