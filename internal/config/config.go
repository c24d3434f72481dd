package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP listener settings for the webhook endpoint.
type ServerConfig struct {
	Listen string `yaml:"listen" envconfig:"SERVER_LISTEN"`
}

// TwilioConfig holds outbound WhatsApp messaging settings.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid" envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `yaml:"auth_token" envconfig:"TWILIO_AUTH_TOKEN"`
	// From is the configured sender address, e.g. "whatsapp:+14155238886".
	From string `yaml:"from" envconfig:"TWILIO_WHATSAPP_NUMBER"`
	// FollowUpDelay schedules the promotional reminder after a successful
	// registration; 0 disables the follow-up entirely.
	FollowUpDelay    time.Duration `yaml:"follow_up_delay" envconfig:"TWILIO_FOLLOW_UP_DELAY"`
	FollowUpBody     string        `yaml:"follow_up_body" envconfig:"TWILIO_FOLLOW_UP_BODY"`
	FollowUpMediaURL string        `yaml:"follow_up_media_url" envconfig:"TWILIO_FOLLOW_UP_MEDIA_URL"`
}

// LMSConfig holds learning-management-system webservice settings.
type LMSConfig struct {
	BaseURL string `yaml:"base_url" envconfig:"LMS_BASE_URL"`
	Token   string `yaml:"token" envconfig:"LMS_TOKEN"`
	// Timeout bounds every LMS call; timed-out lookups degrade to "absent".
	Timeout       time.Duration `yaml:"timeout" envconfig:"LMS_TIMEOUT"`
	StudentRoleID int           `yaml:"student_role_id" envconfig:"LMS_STUDENT_ROLE_ID"`
}

// DirectoryConfig holds settings for the spreadsheet-backed group directory.
type DirectoryConfig struct {
	BaseURL string        `yaml:"base_url" envconfig:"DIRECTORY_BASE_URL"`
	SheetID string        `yaml:"sheet_id" envconfig:"DIRECTORY_SHEET_ID"`
	Range   string        `yaml:"range" envconfig:"DIRECTORY_RANGE"`
	APIKey  string        `yaml:"api_key" envconfig:"DIRECTORY_API_KEY"`
	Timeout time.Duration `yaml:"timeout" envconfig:"DIRECTORY_TIMEOUT"`
}

// DatabaseConfig holds relational store connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
	File   string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// BotConfig holds conversation-level settings.
type BotConfig struct {
	// SupportContact is shown in help and failure messages.
	SupportContact string `yaml:"support_contact" envconfig:"BOT_SUPPORT_CONTACT"`
}

// Config aggregates the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Twilio    TwilioConfig    `yaml:"twilio"`
	LMS       LMSConfig       `yaml:"lms"`
	Directory DirectoryConfig `yaml:"directory"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Bot       BotConfig       `yaml:"bot"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = ":8080"
	}

	if cfg.Twilio.AccountSID == "" {
		return fmt.Errorf("twilio.account_sid is required")
	}
	if cfg.Twilio.AuthToken == "" {
		return fmt.Errorf("twilio.auth_token is required")
	}
	if strings.TrimSpace(cfg.Twilio.From) == "" {
		return fmt.Errorf("twilio.from is required")
	}
	if !strings.HasPrefix(cfg.Twilio.From, "whatsapp:") {
		cfg.Twilio.From = "whatsapp:" + cfg.Twilio.From
	}
	if cfg.Twilio.FollowUpDelay < 0 {
		return fmt.Errorf("twilio.follow_up_delay must be >= 0")
	}

	if strings.TrimSpace(cfg.LMS.BaseURL) == "" {
		return fmt.Errorf("lms.base_url is required")
	}
	if cfg.LMS.Token == "" {
		return fmt.Errorf("lms.token is required")
	}
	if cfg.LMS.Timeout <= 0 {
		cfg.LMS.Timeout = 8 * time.Second
	}
	if cfg.LMS.StudentRoleID <= 0 {
		cfg.LMS.StudentRoleID = 5
	}

	if strings.TrimSpace(cfg.Directory.BaseURL) == "" {
		cfg.Directory.BaseURL = "https://sheets.googleapis.com"
	}
	if strings.TrimSpace(cfg.Directory.SheetID) == "" {
		return fmt.Errorf("directory.sheet_id is required")
	}
	if strings.TrimSpace(cfg.Directory.Range) == "" {
		cfg.Directory.Range = "Groups!A2:C"
	}
	if cfg.Directory.APIKey == "" {
		return fmt.Errorf("directory.api_key is required")
	}
	if cfg.Directory.Timeout <= 0 {
		cfg.Directory.Timeout = 8 * time.Second
	}

	if strings.TrimSpace(cfg.Database.Host) == "" {
		return fmt.Errorf("database.host is required")
	}
	if strings.TrimSpace(cfg.Database.Port) == "" {
		cfg.Database.Port = "5432"
	}
	if strings.TrimSpace(cfg.Database.SSLMode) == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 10
	}

	return nil
}
