package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Intake    IntakeConfig    `mapstructure:"intake"`
	Roster    RosterConfig    `mapstructure:"roster"`
	Mail      MailConfig      `mapstructure:"mail"`
	Calendar  CalendarConfig  `mapstructure:"calendar"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// LogConfig holds process logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=mysql postgres sqlite"`
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

// StorageConfig holds the attachment storage root
type StorageConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// IntakeConfig holds the mailbox scan rules
type IntakeConfig struct {
	AllowedSenders []string `mapstructure:"allowed_senders" validate:"required,min=1,dive,email"`
	FilenameMarker string   `mapstructure:"filename_marker" validate:"required"`
	FileExtension  string   `mapstructure:"file_extension" validate:"required"`
	FetchLimit     int      `mapstructure:"fetch_limit" validate:"min=1"`
}

// RosterConfig holds the document layout parameters that vary per deployment
type RosterConfig struct {
	Timezone           string `mapstructure:"timezone" validate:"required"`
	Person             string `mapstructure:"person" validate:"required"`
	Location           string `mapstructure:"location"`
	MaxDocumentsPerRun int    `mapstructure:"max_documents_per_run" validate:"min=1"`
}

// MailConfig holds mail transport configuration
type MailConfig struct {
	Provider     string `mapstructure:"provider" validate:"oneof=imap gmail"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPUser     string `mapstructure:"imap_user"`
	IMAPPassword string `mapstructure:"imap_password"`
	Mailbox      string `mapstructure:"mailbox"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
}

// CalendarConfig holds calendar transport configuration
type CalendarConfig struct {
	Provider     string `mapstructure:"provider" validate:"oneof=caldav gcal"`
	Name         string `mapstructure:"name" validate:"required"`
	CalDAVURL    string `mapstructure:"caldav_url"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig holds the optional cross-process run lock backend
type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	LockKey string        `mapstructure:"lock_key"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// LoadConfig loads configuration from .env, environment variables and config file
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "shiftbot.db")

	v.SetDefault("storage.dir", "attachments")

	v.SetDefault("intake.filename_marker", "DP_")
	v.SetDefault("intake.file_extension", ".pdf")
	v.SetDefault("intake.fetch_limit", 20)

	v.SetDefault("roster.timezone", "Europe/Berlin")
	v.SetDefault("roster.max_documents_per_run", 1)

	v.SetDefault("mail.provider", "imap")
	v.SetDefault("mail.imap_host", "imap.mail.me.com")
	v.SetDefault("mail.imap_port", 993)
	v.SetDefault("mail.mailbox", "INBOX")

	v.SetDefault("calendar.provider", "caldav")
	v.SetDefault("calendar.name", "Work")
	v.SetDefault("calendar.caldav_url", "https://caldav.icloud.com/")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval_minutes", 15)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("redis.lock_key", "shiftbot:run-lock")
	v.SetDefault("redis.lock_ttl", "30m")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Logging
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.path", "DB_PATH")

	// Storage and intake
	v.BindEnv("storage.dir", "ATTACHMENT_DIR")
	v.BindEnv("intake.allowed_senders", "ALLOWED_SENDERS")
	v.BindEnv("intake.filename_marker", "FILENAME_MARKER")
	v.BindEnv("intake.file_extension", "FILE_EXTENSION")
	v.BindEnv("intake.fetch_limit", "FETCH_LIMIT")

	// Roster
	v.BindEnv("roster.timezone", "LOCAL_TZ")
	v.BindEnv("roster.person", "ROSTER_PERSON")
	v.BindEnv("roster.location", "ROSTER_LOCATION")
	v.BindEnv("roster.max_documents_per_run", "ROSTER_MAX_DOCUMENTS_PER_RUN")

	// Mail
	v.BindEnv("mail.provider", "MAIL_PROVIDER")
	v.BindEnv("mail.imap_host", "ICLOUD_IMAP_SERVER")
	v.BindEnv("mail.imap_port", "IMAP_PORT")
	v.BindEnv("mail.imap_user", "ICLOUD_USERNAME")
	v.BindEnv("mail.imap_password", "ICLOUD_PASSWORD")
	v.BindEnv("mail.mailbox", "IMAP_MAILBOX")
	v.BindEnv("mail.client_id", "GMAIL_CLIENT_ID")
	v.BindEnv("mail.client_secret", "GMAIL_CLIENT_SECRET")
	v.BindEnv("mail.refresh_token", "GMAIL_REFRESH_TOKEN")
	v.BindEnv("mail.user_email", "GMAIL_USER_EMAIL")

	// Calendar
	v.BindEnv("calendar.provider", "CALENDAR_PROVIDER")
	v.BindEnv("calendar.name", "CALENDAR_NAME")
	v.BindEnv("calendar.caldav_url", "CALDAV_URL")
	v.BindEnv("calendar.username", "ICLOUD_USERNAME")
	v.BindEnv("calendar.password", "ICLOUD_PASSWORD")
	v.BindEnv("calendar.client_id", "GCAL_CLIENT_ID")
	v.BindEnv("calendar.client_secret", "GCAL_CLIENT_SECRET")
	v.BindEnv("calendar.refresh_token", "GCAL_REFRESH_TOKEN")

	// Scheduler and server
	v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	v.BindEnv("scheduler.interval_minutes", "SCHEDULER_INTERVAL_MINUTES")
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Redis
	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("redis.lock_key", "REDIS_LOCK_KEY")
	v.BindEnv("redis.lock_ttl", "REDIS_LOCK_TTL")
}

// GetDSN returns the database connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	if c.URL != "" {
		return c.URL
	}

	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	case "sqlite":
		return c.Path + "?_foreign_keys=on&_busy_timeout=5000"
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	}
}

// TimeLocation resolves the roster home timezone
func (c *RosterConfig) TimeLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid roster timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := c.Roster.TimeLocation(); err != nil {
		return err
	}

	if c.Database.URL == "" && c.Database.Driver != "sqlite" {
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	}

	switch c.Mail.Provider {
	case "imap":
		if c.Mail.IMAPHost == "" || c.Mail.IMAPUser == "" || c.Mail.IMAPPassword == "" {
			return fmt.Errorf("IMAP host and credentials are required when using IMAP")
		}
	case "gmail":
		if c.Mail.ClientID == "" || c.Mail.ClientSecret == "" || c.Mail.RefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required when using the Gmail API")
		}
	}

	switch c.Calendar.Provider {
	case "caldav":
		if c.Calendar.CalDAVURL == "" || c.Calendar.Username == "" || c.Calendar.Password == "" {
			return fmt.Errorf("CalDAV URL and credentials are required when using CalDAV")
		}
	case "gcal":
		if c.Calendar.ClientID == "" || c.Calendar.ClientSecret == "" || c.Calendar.RefreshToken == "" {
			return fmt.Errorf("Google Calendar OAuth2 credentials are required when using gcal")
		}
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.IntervalMinutes <= 0 {
			return fmt.Errorf("scheduler interval must be greater than 0")
		}
		if c.Server.Port == "" {
			return fmt.Errorf("server port is required when the scheduler is enabled")
		}
	}

	return nil
}
