package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime settings of the export service.
type Config struct {
	Env               string `mapstructure:"APP_ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	LogFormat         string `mapstructure:"LOG_FORMAT"`
	HTTPAddr          string `mapstructure:"HTTP_ADDR"`
	DBConnectionURL   string `mapstructure:"DB_CONNECTION_STRING"`
	EncryptionKeyB64  string `mapstructure:"ENC_KEY_B64"`
	EncryptionAlg     string `mapstructure:"ENC_ALGORITHM"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	OperatorTOTP      string `mapstructure:"OPERATOR_TOTP_SECRET"`
	ExportRoot        string `mapstructure:"EXPORT_ROOT"`
	OriginatorID      string `mapstructure:"ORIGINATOR_ID"`
	DefaultEntryClass string `mapstructure:"DEFAULT_ENTRY_CLASS"`
	LinkTTLMinutes    int    `mapstructure:"LINK_TTL_MINUTES"`
	BatchSchedule     string `mapstructure:"BATCH_SCHEDULE"`
	BatchScheduleRun  int    `mapstructure:"BATCH_SCHEDULE_RUN"`
	TrustedProxies    string `mapstructure:"TRUSTED_PROXIES"`
}

var keys = []string{
	"APP_ENV",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"HTTP_ADDR",
	"DB_CONNECTION_STRING",
	"ENC_KEY_B64",
	"ENC_ALGORITHM",
	"JWT_SECRET",
	"OPERATOR_TOTP_SECRET",
	"EXPORT_ROOT",
	"ORIGINATOR_ID",
	"DEFAULT_ENTRY_CLASS",
	"LINK_TTL_MINUTES",
	"BATCH_SCHEDULE",
	"BATCH_SCHEDULE_RUN",
	"TRUSTED_PROXIES",
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file, continuing with system environment variables")
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("ENC_ALGORITHM", "aes-256-gcm")
	v.SetDefault("EXPORT_ROOT", "./private/ach")
	v.SetDefault("DEFAULT_ENTRY_CLASS", "CCD")
	v.SetDefault("LINK_TTL_MINUTES", 15)
	v.SetDefault("BATCH_SCHEDULE_RUN", 1)
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so bind every one explicitly.
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode configuration: %w", err)
	}
	return &cfg, nil
}

// Validate reports every required setting that is missing.
func (c *Config) Validate() error {
	var missing []string
	if c.DBConnectionURL == "" {
		missing = append(missing, "DB_CONNECTION_STRING")
	}
	if c.EncryptionKeyB64 == "" {
		missing = append(missing, "ENC_KEY_B64")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.OriginatorID == "" {
		missing = append(missing, "ORIGINATOR_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	if c.LinkTTLMinutes < 0 {
		return fmt.Errorf("LINK_TTL_MINUTES must not be negative")
	}
	return nil
}
