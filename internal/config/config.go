package config

import (
	"fmt"
	"sync/atomic"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is populated from
// built-in defaults, an optional config file, environment variables with the
// GRAPHPORT_ prefix, and command-line flags, in ascending precedence.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Import   ImportConfig   `mapstructure:"import" yaml:"import"`
	Export   ExportConfig   `mapstructure:"export" yaml:"export"`
}

// LoggerConfig controls the structured logger.
type LoggerConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Format  string `mapstructure:"format" yaml:"format"`
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
	// Rotation settings for the log file, in megabytes / count / days.
	MaxSize    int  `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int  `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig selects and parameterizes the graph store backend.
type DatabaseConfig struct {
	// Driver is one of "memory", "postgres" or "neo4j".
	Driver string `mapstructure:"driver" yaml:"driver"`
	// URL is the PostgreSQL connection string when Driver is "postgres".
	URL   string      `mapstructure:"url" yaml:"url"`
	Neo4j Neo4jConfig `mapstructure:"neo4j" yaml:"neo4j"`
}

// Neo4jConfig holds the Bolt connection parameters when Driver is "neo4j".
type Neo4jConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// ImportConfig tunes the GraphML import engine.
type ImportConfig struct {
	BatchSize        int    `mapstructure:"batch_size" yaml:"batch_size"`
	CommitMultiplier int    `mapstructure:"commit_multiplier" yaml:"commit_multiplier"`
	DefaultRelType   string `mapstructure:"default_rel_type" yaml:"default_rel_type"`
	StoreNodeIDs     bool   `mapstructure:"store_node_ids" yaml:"store_node_ids"`
	ReadLabels       bool   `mapstructure:"read_labels" yaml:"read_labels"`
}

// ExportConfig tunes the GraphML export writer.
type ExportConfig struct {
	UseTypes   bool `mapstructure:"use_types" yaml:"use_types"`
	ReadLabels bool `mapstructure:"read_labels" yaml:"read_labels"`
}

// SetDefaults registers the default for every configuration key on the given
// viper instance. Called before any config file or environment variable is
// read so that partial configs always unmarshal into a complete Config.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.url", "")
	v.SetDefault("database.neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("database.neo4j.username", "neo4j")
	v.SetDefault("database.neo4j.password", "")
	v.SetDefault("database.neo4j.database", "neo4j")

	// -- Import --
	v.SetDefault("import.batch_size", 40000)
	v.SetDefault("import.commit_multiplier", 10)
	v.SetDefault("import.default_rel_type", "UNKNOWN")
	v.SetDefault("import.store_node_ids", false)
	v.SetDefault("import.read_labels", false)

	// -- Export --
	v.SetDefault("export.use_types", true)
	v.SetDefault("export.read_labels", true)
}

// NewConfigFromViper builds and validates a Config from a loaded viper
// instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	if err := v.BindEnv("database.neo4j.password", "GRAPHPORT_NEO4J_PASSWORD"); err != nil {
		return nil, fmt.Errorf("bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Logger.LogFile = expandPath(cfg.Logger.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig returns a Config holding only the built-in defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// The defaults are static and always valid.
		panic(fmt.Sprintf("config: defaults failed to load: %v", err))
	}
	return cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "postgres", "neo4j":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("database.url is required for the postgres driver")
	}
	if c.Database.Driver == "neo4j" && c.Database.Neo4j.URI == "" {
		return fmt.Errorf("database.neo4j.uri is required for the neo4j driver")
	}
	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("import.batch_size must be positive, got %d", c.Import.BatchSize)
	}
	if c.Import.CommitMultiplier <= 0 {
		return fmt.Errorf("import.commit_multiplier must be positive, got %d", c.Import.CommitMultiplier)
	}
	if c.Import.DefaultRelType == "" {
		return fmt.Errorf("import.default_rel_type must not be empty")
	}
	return nil
}

// expandPath resolves a leading ~ to the user's home directory. Paths that
// cannot be expanded are returned unchanged.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

var current atomic.Pointer[Config]

// Get returns the process-wide active configuration, falling back to the
// built-in defaults when Set has not been called yet.
func Get() *Config {
	if cfg := current.Load(); cfg != nil {
		return cfg
	}
	return NewDefaultConfig()
}

// Set replaces the process-wide active configuration.
func Set(cfg *Config) {
	current.Store(cfg)
}
