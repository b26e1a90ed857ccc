// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
)

// Options holds the configuration values for the application.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `json:"addr"`

	// DataDir is the directory holding the JSON snapshot files.
	DataDir string `json:"data_dir"`

	// AuditDSN is an optional PostgreSQL connection string; when set,
	// audit log flushes are also archived to the database.
	AuditDSN string `json:"audit_dsn"`

	// Policy selects the initial load balancer policy.
	Policy string `json:"policy"`

	// BcryptCost is the cost factor for password hashing.
	BcryptCost int `json:"bcrypt_cost"`

	// LogLevel sets the zap log level (debug, info, warn, error).
	LogLevel string `json:"log_level"`

	// Config is the path to the config file.
	Config string `json:"-"`
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Addr, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.DataDir, "d", "data", "directory for snapshot files")
	flag.StringVar(&options.AuditDSN, "audit-dsn", "", "postgres DSN for the audit archive")
	flag.StringVar(&options.Policy, "p", "ROUND_ROBIN", "load balancer policy")
	flag.IntVar(&options.BcryptCost, "bcrypt-cost", 10, "bcrypt cost for password hashing")
	flag.StringVar(&options.LogLevel, "l", "info", "log level")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	applyEnv()

	return options
}

// applyEnv overrides options with environment variables if set.
func applyEnv() {
	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Addr = serverAddress
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		options.DataDir = dataDir
	}
	if auditDSN := os.Getenv("AUDIT_DSN"); auditDSN != "" {
		options.AuditDSN = auditDSN
	}
	if policy := os.Getenv("BALANCER_POLICY"); policy != "" {
		options.Policy = policy
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		options.LogLevel = logLevel
	}
}
