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

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: DEV
dev_mode_bypass: true
store:
  driver: memory
auth:
  issuer: "https://issuer.example.com/oauth2/default/"
collaborators:
  state_machine_url: http://statemachine:8080
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.Collaborators.Timeout)
	assert.Equal(t, "http://%s", cfg.Collaborators.EvaluatorURLTemplate)
	assert.Equal(t, "https://issuer.example.com/oauth2/default", cfg.Auth.Issuer)
	assert.Equal(t, "workflow-scheme-changes", cfg.Redis.Stream)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: postgres\ndb:\n  name: schemes\n  user: app\nauth:\n  issuer: https://idp\n")
	t.Setenv("SCHEME_DB_HOST", "db.internal")
	t.Setenv("SCHEME_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres://app:@db.internal:5432/schemes?sslmode=disable", cfg.DSN())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"memory ok", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, true},
		{"postgres needs db", func(c *Config) { c.Store.Driver = "postgres" }, true},
		{"template without placeholder", func(c *Config) { c.Collaborators.EvaluatorURLTemplate = "http://fixed" }, true},
		{"issuer required without bypass", func(c *Config) { c.DevModeBypass = false }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{DevModeBypass: true}
			c.Store.Driver = "memory"
			c.Collaborators.EvaluatorURLTemplate = "http://%s"
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
