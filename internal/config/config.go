// Package config loads runtime settings from defaults, an optional .env
// file, environment variables, an optional YAML file and command line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ParasBhendarkar/Simple-email-Sender/internal/mailer"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/service"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/validator"
)

// Config holds every setting shared by the binaries.
type Config struct {
	Host      string `mapstructure:"host" validate:"required_if=Transport smtp"`
	Port      int    `mapstructure:"port" validate:"min=1,max=65535"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FromName  string `mapstructure:"from_name"`
	FromEmail string `mapstructure:"from_email" validate:"required_unless=Transport log"`

	Transport    string `mapstructure:"transport" validate:"oneof=smtp resend log"`
	ResendAPIKey string `mapstructure:"resend_api_key" validate:"required_if=Transport resend"`

	BatchSize              int           `mapstructure:"batch_size" validate:"min=1"`
	DelayBetweenMessages   time.Duration `mapstructure:"delay_between_messages" validate:"gte=0"`
	DelayBetweenBatches    time.Duration `mapstructure:"delay_between_batches" validate:"gte=0"`
	MaxRetriesPerRecipient int           `mapstructure:"max_retries_per_recipient" validate:"min=1"`
	MaxPerRun              int           `mapstructure:"max_per_run" validate:"min=0"`
	DryRun                 bool          `mapstructure:"dry_run"`

	DBDriver string `mapstructure:"db_driver" validate:"oneof=sqlite postgres"`
	DBDSN    string `mapstructure:"db_dsn" validate:"required"`

	AddressColumn   string `mapstructure:"address_column" validate:"required"`
	DefaultSubject  string `mapstructure:"default_subject"`
	DefaultBody     string `mapstructure:"default_body"`
	BodyFormat      string `mapstructure:"body_format" validate:"oneof=text markdown"`
	CompanyName     string `mapstructure:"company_name"`
	UnsubscribeLink string `mapstructure:"unsubscribe_link"`

	AMQPURL  string `mapstructure:"amqp_url"`
	HTTPAddr string `mapstructure:"http_addr" validate:"required"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json text"`
}

var defaults = map[string]any{
	"port":                      587,
	"from_name":                 "",
	"transport":                 "smtp",
	"batch_size":                10,
	"delay_between_messages":    "1s",
	"delay_between_batches":     "60s",
	"max_retries_per_recipient": 2,
	"max_per_run":               0,
	"dry_run":                   false,
	"db_driver":                 "sqlite",
	"db_dsn":                    "send_history.db",
	"address_column":            "email",
	"default_subject":           "Hello from Your Company!",
	"default_body":              "Hi {name},\n\nThis is a test email.\n\nBest regards,\n{company_name}",
	"company_name":              "Your Company",
	"body_format":               "text",
	"http_addr":                 ":8080",
	"log_level":                 "info",
	"log_format":                "json",
}

var envBindings = map[string][]string{
	"host":                      {"SMTP_HOST"},
	"port":                      {"SMTP_PORT"},
	"username":                  {"SMTP_USER", "SMTP_USERNAME"},
	"password":                  {"SMTP_PASSWORD", "SMTP_PASS"},
	"from_name":                 {"FROM_NAME"},
	"from_email":                {"FROM_EMAIL"},
	"transport":                 {"TRANSPORT"},
	"resend_api_key":            {"RESEND_API_KEY"},
	"batch_size":                {"BATCH_SIZE"},
	"delay_between_messages":    {"DELAY_BETWEEN_MESSAGES"},
	"delay_between_batches":     {"DELAY_BETWEEN_BATCHES"},
	"max_retries_per_recipient": {"MAX_RETRIES_PER_RECIPIENT"},
	"max_per_run":               {"MAX_PER_RUN"},
	"dry_run":                   {"DRY_RUN"},
	"db_driver":                 {"DB_DRIVER"},
	"db_dsn":                    {"DB_DSN", "DATABASE_URL"},
	"address_column":            {"ADDRESS_COLUMN"},
	"default_subject":           {"DEFAULT_SUBJECT"},
	"default_body":              {"DEFAULT_BODY"},
	"body_format":               {"BODY_FORMAT"},
	"company_name":              {"COMPANY_NAME"},
	"unsubscribe_link":          {"UNSUBSCRIBE_LINK"},
	"amqp_url":                  {"AMQP_URL"},
	"http_addr":                 {"HTTP_ADDR"},
	"log_level":                 {"LOG_LEVEL"},
	"log_format":                {"LOG_FORMAT"},
}

// flag name -> config key
var flagBindings = map[string]string{
	"dry-run":        "dry_run",
	"batch-size":     "batch_size",
	"delay":          "delay_between_messages",
	"batch-delay":    "delay_between_batches",
	"max-retries":    "max_retries_per_recipient",
	"max-per-run":    "max_per_run",
	"address-column": "address_column",
	"format":         "body_format",
}

// RegisterFlags adds the flags that override configuration keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.Bool("dry-run", false, "render and record without sending")
	fs.Int("batch-size", 0, "recipients per batch")
	fs.String("delay", "", "delay between messages (duration or seconds)")
	fs.String("batch-delay", "", "pause between batches (duration or seconds)")
	fs.Int("max-retries", 0, "transport attempts per recipient")
	fs.Int("max-per-run", 0, "stop after this many sends (0 = unlimited)")
	fs.String("address-column", "", "CSV column holding the email address")
	fs.String("format", "", "body format: text or markdown")
}

// Load resolves the configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		Host:                   v.GetString("host"),
		Port:                   v.GetInt("port"),
		Username:               v.GetString("username"),
		Password:               v.GetString("password"),
		FromName:               v.GetString("from_name"),
		FromEmail:              v.GetString("from_email"),
		Transport:              strings.ToLower(v.GetString("transport")),
		ResendAPIKey:           v.GetString("resend_api_key"),
		BatchSize:              v.GetInt("batch_size"),
		MaxRetriesPerRecipient: v.GetInt("max_retries_per_recipient"),
		MaxPerRun:              v.GetInt("max_per_run"),
		DryRun:                 v.GetBool("dry_run"),
		DBDriver:               strings.ToLower(v.GetString("db_driver")),
		DBDSN:                  v.GetString("db_dsn"),
		AddressColumn:          v.GetString("address_column"),
		DefaultSubject:         v.GetString("default_subject"),
		DefaultBody:            v.GetString("default_body"),
		BodyFormat:             strings.ToLower(v.GetString("body_format")),
		CompanyName:            v.GetString("company_name"),
		UnsubscribeLink:        v.GetString("unsubscribe_link"),
		AMQPURL:                v.GetString("amqp_url"),
		HTTPAddr:               v.GetString("http_addr"),
		LogLevel:               strings.ToLower(v.GetString("log_level")),
		LogFormat:              strings.ToLower(v.GetString("log_format")),
	}

	var err error
	if cfg.DelayBetweenMessages, err = parseDuration(v.GetString("delay_between_messages")); err != nil {
		return nil, fmt.Errorf("delay_between_messages: %w", err)
	}
	if cfg.DelayBetweenBatches, err = parseDuration(v.GetString("delay_between_batches")); err != nil {
		return nil, fmt.Errorf("delay_between_batches: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration accepts Go durations ("1.5s", "2m") and bare numbers of seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Validate checks field constraints and returns a validator.V10ValidationError.
func (c *Config) Validate() error {
	v, err := validator.NewV10Validator()
	if err != nil {
		return err
	}

	verr := validator.V10ValidationError{}
	if err := v.Validate(c); err != nil {
		var fields validator.V10ValidationError
		if !errors.As(err, &fields) {
			return err
		}
		for k, msg := range fields {
			verr[k] = msg
		}
	}
	if c.FromEmail != "" {
		if err := v.Email(c.FromEmail); err != nil {
			verr["from_email"] = err.Error()
		}
	}

	if len(verr) > 0 {
		return verr
	}
	return nil
}

// Dispatch returns the engine settings.
func (c *Config) Dispatch() service.DispatchConfig {
	return service.DispatchConfig{
		BatchSize:              c.BatchSize,
		DelayBetweenMessages:   c.DelayBetweenMessages,
		DelayBetweenBatches:    c.DelayBetweenBatches,
		MaxRetriesPerRecipient: c.MaxRetriesPerRecipient,
		MaxPerRun:              c.MaxPerRun,
		DryRun:                 c.DryRun,
	}
}

// Mailer returns the transport settings.
func (c *Config) Mailer() mailer.Options {
	return mailer.Options{
		Transport:    c.Transport,
		Host:         c.Host,
		Port:         c.Port,
		Username:     c.Username,
		Password:     c.Password,
		FromName:     c.FromName,
		FromEmail:    c.FromEmail,
		ResendAPIKey: c.ResendAPIKey,
	}
}

// Globals returns template values shared by every recipient.
func (c *Config) Globals() map[string]string {
	return map[string]string{"company_name": c.CompanyName}
}

// Defaults returns the fallback template used when a run names none.
func (c *Config) Defaults() service.CampaignDefaults {
	return service.CampaignDefaults{
		Subject:       c.DefaultSubject,
		Body:          c.DefaultBody,
		Format:        c.BodyFormat,
		AddressColumn: c.AddressColumn,
	}
}
