package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Twilio: TwilioConfig{
			AccountSID: "ACxxxxxxxx",
			AuthToken:  "secret",
			From:       "whatsapp:+14155238886",
		},
		LMS: LMSConfig{
			BaseURL: "https://lms.example.lk",
			Token:   "wstoken",
		},
		Directory: DirectoryConfig{
			SheetID: "sheet-1",
			APIKey:  "key",
		},
		Database: DatabaseConfig{
			Host: "localhost",
			User: "enrollbot",
			Name: "enrollbot",
		},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 8*time.Second, cfg.LMS.Timeout)
	assert.Equal(t, 5, cfg.LMS.StudentRoleID)
	assert.Equal(t, "https://sheets.googleapis.com", cfg.Directory.BaseURL)
	assert.Equal(t, "Groups!A2:C", cfg.Directory.Range)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 10, cfg.Database.MaxConnections)
}

func TestNormalizePrependsWhatsAppPrefix(t *testing.T) {
	cfg := validConfig()
	cfg.Twilio.From = "+14155238886"
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, "whatsapp:+14155238886", cfg.Twilio.From)
}

func TestNormalizeRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing account sid", func(c *Config) { c.Twilio.AccountSID = "" }},
		{"missing auth token", func(c *Config) { c.Twilio.AuthToken = "" }},
		{"missing from", func(c *Config) { c.Twilio.From = "  " }},
		{"missing lms base url", func(c *Config) { c.LMS.BaseURL = "" }},
		{"missing lms token", func(c *Config) { c.LMS.Token = "" }},
		{"missing sheet id", func(c *Config) { c.Directory.SheetID = "" }},
		{"missing directory api key", func(c *Config) { c.Directory.APIKey = "" }},
		{"missing db host", func(c *Config) { c.Database.Host = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, Normalize(cfg))
		})
	}
}

func TestNormalizeNil(t *testing.T) {
	assert.Error(t, Normalize(nil))
}
