package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config holds the global configuration for encoding and lookups
type Config struct {
	// Input settings
	Admin0Path string // admin0 dataset: directory or .shp file
	Admin1Path string // admin1 dataset: directory or .shp file
	StyleFile  string // YAML attribute field mapping
	HookFile   string // Lua region hook

	// Output settings
	OutputDir  string // tile files are written to <OutputDir>/west and <OutputDir>/east
	ScratchDir string // memory-mapped canvas files; empty keeps canvases on the heap
	FillRule   string // nonzero or evenodd

	// Post-processing of written tile files
	Optimize        bool
	OptimizeCommand string

	// Database settings
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSchema   string

	// Processing settings
	Workers int

	// Lookup settings
	TileCacheSize int64         // decoded tiles kept in memory
	ListenAddr    string        // HTTP address for serve
	RedisAddr     string        // empty disables the result cache
	RedisPassword string
	RedisTTL      time.Duration

	// Logging and metrics
	Verbose         bool
	LogFile         string        // Path to log file (empty = no file logging)
	MetricsInterval time.Duration // Interval for system metrics logging
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OutputDir:       "./admin1",
		FillRule:        "nonzero",
		OptimizeCommand: "optipng",
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "adminraster",
		DBUser:          "postgres",
		DBSchema:        "public",
		Workers:         runtime.NumCPU(),
		TileCacheSize:   64,
		ListenAddr:      ":8080",
		RedisTTL:        24 * time.Hour,
		MetricsInterval: 30 * time.Second,
	}
}

// ApplyEnv overrides connection settings from ADMINRASTER_* environment
// variables. Unparseable numeric values are ignored.
func (c *Config) ApplyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("ADMINRASTER_DB_HOST", &c.DBHost)
	setString("ADMINRASTER_DB_NAME", &c.DBName)
	setString("ADMINRASTER_DB_USER", &c.DBUser)
	setString("ADMINRASTER_DB_PASSWORD", &c.DBPassword)
	setString("ADMINRASTER_DB_SCHEMA", &c.DBSchema)
	setString("ADMINRASTER_REDIS_ADDR", &c.RedisAddr)
	setString("ADMINRASTER_REDIS_PASSWORD", &c.RedisPassword)
	setString("ADMINRASTER_LISTEN", &c.ListenAddr)

	if v := os.Getenv("ADMINRASTER_DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DBPort = n
		}
	}
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	if c.DBSchema != "" && c.DBSchema != "public" {
		connStr += fmt.Sprintf(" search_path=%s", c.DBSchema)
	}
	return connStr
}

// Validate checks the settings shared by every command
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.FillRule != "nonzero" && c.FillRule != "evenodd" {
		return fmt.Errorf("fill rule must be nonzero or evenodd, got %q", c.FillRule)
	}
	if c.TileCacheSize < 1 {
		return fmt.Errorf("tile cache size must be at least 1")
	}
	return nil
}

// ValidateEncode checks the settings needed by the encode command
func (c *Config) ValidateEncode() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Admin0Path == "" || c.Admin1Path == "" {
		return fmt.Errorf("admin0 and admin1 datasets are required")
	}
	if c.Admin0Path == c.Admin1Path {
		return fmt.Errorf("admin0 and admin1 datasets must be in different locations")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Optimize && c.OptimizeCommand == "" {
		return fmt.Errorf("optimize requires an optimize command")
	}
	return nil
}
