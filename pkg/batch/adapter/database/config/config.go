// Package config defines the settings of a named database connection.
package config

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string `yaml:"type"`     // "mysql", "postgres" or "sqlite".
	Host     string `yaml:"host"`     // Database host address.
	Port     int    `yaml:"port"`     // Database port number.
	Database string `yaml:"database"` // Database name, or file path for sqlite.
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema,omitempty"` // PostgreSQL search_path.
	Sslmode  string `yaml:"sslmode"`
	// Params are extra driver parameters appended to the DSN.
	Params map[string]string `yaml:"params,omitempty"`
	Pool   PoolConfig        `yaml:"pool"`
	// LogLevel is the GORM log level ("silent", "error", "warn", "info").
	LogLevel string `yaml:"log_level"`
}
