package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type TeamConfig struct {
	// InviteTTL is how long a fresh invitation stays consumable.
	InviteTTL time.Duration `mapstructure:"invite_ttl"`
	// LoadTimeout bounds one team data load round trip.
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
	// SignoutDelay is the pause between the access-revoked notice and the
	// forced sign-out, so the notice is delivered first.
	SignoutDelay time.Duration `mapstructure:"signout_delay"`
}

type EmailConfig struct {
	From              string `mapstructure:"from"`
	SMTPHost          string `mapstructure:"smtp_host"`
	SMTPPort          int    `mapstructure:"smtp_port"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	InviteURLTemplate string `mapstructure:"invite_url_template"`
}

type Config struct {
	DatabaseURL string      `mapstructure:"database_url"`
	ServerPort  string      `mapstructure:"server_port"`
	JWTSecret   string      `mapstructure:"jwt_secret"`
	Team        TeamConfig  `mapstructure:"team"`
	Email       EmailConfig `mapstructure:"email"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}

	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}

	if config.Team.InviteTTL == 0 {
		config.Team.InviteTTL = 7 * 24 * time.Hour
	}
	if config.Team.LoadTimeout == 0 {
		config.Team.LoadTimeout = 15 * time.Second
	}
	if config.Team.SignoutDelay == 0 {
		config.Team.SignoutDelay = 3 * time.Second
	}

	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if config.Email.InviteURLTemplate == "" {
		config.Email.InviteURLTemplate = "https://app.receiptly.dev/invite/accept?token=%s"
	}

	return &config
}
