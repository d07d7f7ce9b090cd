package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// RedisConfig configures the notification dedup guard. When Addr is empty
// the in-memory guard is used instead.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// SchedulerConfig contains the periodic job runner settings.
type SchedulerConfig struct {
	// Timezone is the location wall-clock job schedules are evaluated in.
	Timezone string `mapstructure:"timezone" validate:"required,timezone"`

	// Enabled turns the job runner off entirely, for operational tooling
	// that needs the services without the background sweeps.
	Enabled bool `mapstructure:"enabled"`
}
