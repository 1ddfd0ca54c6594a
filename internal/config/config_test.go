package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Driver: "mysql",
			Host:   "localhost",
			Port:   3306,
			User:   "shiftbot",
			DBName: "shiftbot",
		},
		Storage: StorageConfig{Dir: "attachments"},
		Intake: IntakeConfig{
			AllowedSenders: []string{"planner@example.com"},
			FilenameMarker: "DP_",
			FileExtension:  ".pdf",
			FetchLimit:     20,
		},
		Roster: RosterConfig{
			Timezone:           "Europe/Berlin",
			Person:             "Beitz",
			MaxDocumentsPerRun: 1,
		},
		Mail: MailConfig{
			Provider:     "imap",
			IMAPHost:     "imap.mail.me.com",
			IMAPPort:     993,
			IMAPUser:     "user@icloud.com",
			IMAPPassword: "app-password",
		},
		Calendar: CalendarConfig{
			Provider:  "caldav",
			Name:      "Work",
			CalDAVURL: "https://caldav.icloud.com/",
			Username:  "user@icloud.com",
			Password:  "app-password",
		},
		Scheduler: SchedulerConfig{IntervalMinutes: 15},
		Server:    ServerConfig{Port: "8080"},
	}
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing person", func(c *Config) { c.Roster.Person = "" }},
		{"bad timezone", func(c *Config) { c.Roster.Timezone = "Mars/Olympus" }},
		{"no senders", func(c *Config) { c.Intake.AllowedSenders = nil }},
		{"bad sender", func(c *Config) { c.Intake.AllowedSenders = []string{"not-an-address"} }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"missing db host", func(c *Config) { c.Database.Host = "" }},
		{"imap without password", func(c *Config) { c.Mail.IMAPPassword = "" }},
		{"gmail without token", func(c *Config) { c.Mail.Provider = "gmail" }},
		{"gcal without token", func(c *Config) { c.Calendar.Provider = "gcal" }},
		{"zero fetch limit", func(c *Config) { c.Intake.FetchLimit = 0 }},
		{"scheduler without interval", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.IntervalMinutes = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSQLiteNeedsNoServer(t *testing.T) {
	cfg := validConfig()
	cfg.Database = DatabaseConfig{Driver: "sqlite", Path: "shiftbot.db"}
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "shiftbot.db?_foreign_keys=on&_busy_timeout=5000", cfg.Database.GetDSN())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Driver:   "mysql",
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}
	assert.Equal(t, "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=UTC", cfg.GetDSN())

	cfg.Driver = "postgres"
	cfg.Port = 5432
	cfg.SSLMode = "disable"
	assert.Equal(t, "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable TimeZone=UTC", cfg.GetDSN())

	cfg.URL = "postgres://u:p@db/shiftbot"
	assert.Equal(t, "postgres://u:p@db/shiftbot", cfg.GetDSN())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ALLOWED_SENDERS", "planner@example.com,backup@example.com")
	t.Setenv("ROSTER_PERSON", "Beitz")
	t.Setenv("ATTACHMENT_DIR", "/var/lib/shiftbot")
	t.Setenv("REDIS_LOCK_TTL", "5m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"planner@example.com", "backup@example.com"}, cfg.Intake.AllowedSenders)
	assert.Equal(t, "Beitz", cfg.Roster.Person)
	assert.Equal(t, "/var/lib/shiftbot", cfg.Storage.Dir)
	assert.Equal(t, 5*time.Minute, cfg.Redis.LockTTL)

	// defaults
	assert.Equal(t, "Europe/Berlin", cfg.Roster.Timezone)
	assert.Equal(t, "DP_", cfg.Intake.FilenameMarker)
	assert.Equal(t, ".pdf", cfg.Intake.FileExtension)
	assert.Equal(t, 20, cfg.Intake.FetchLimit)
	assert.Equal(t, 1, cfg.Roster.MaxDocumentsPerRun)
	assert.Equal(t, "Work", cfg.Calendar.Name)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}
