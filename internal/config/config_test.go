package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9090
store:
  driver: memory
ai:
  personas:
    - id: maya
      name: Maya
      system_prompt: You are Maya.
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 10*time.Second, cfg.Subscription.WarmupTimeout)
	assert.Equal(t, 2*time.Second, cfg.AI.MinTyping)
	assert.Equal(t, 27*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, "unichat:", cfg.Redis.KeyPrefix)
	require.Len(t, cfg.AI.Personas, 1)
	assert.Equal(t, "Maya", cfg.AI.Personas[0].Name)
	assert.Same(t, cfg, GlobalConfig)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: memory\nchat:\n  max_content_length: 100\n")
	t.Setenv("UNICHAT_CHAT_MAX_CONTENT_LENGTH", "250")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Chat.MaxContentLength)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"memory ok", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, true},
		{"mongo without uri", func(c *Config) { c.Store.Driver = DriverMongo }, true},
		{"relay on memory", func(c *Config) { c.Store.Relay = true }, true},
		{"ai without key", func(c *Config) { c.AI.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
