package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// globalOptions holds flags accepted before the subcommand
type globalOptions struct {
	ConfigPath  string
	Workspace   string
	LogLevel    string
	LogFormat   string
	ShowVersion bool
	ShowHelp    bool
}

// parseGlobalFlags consumes leading global flags and returns the remaining args
func parseGlobalFlags(args []string) (*globalOptions, []string, error) {
	opts := &globalOptions{}
	fs := globalFlagSet(opts)
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateGlobalFlags(opts); err != nil {
		return nil, nil, fmt.Errorf("invalid flags: %w", err)
	}
	return opts, fs.Args(), nil
}

func globalFlagSet(opts *globalOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.Usage = func() {}

	fs.StringVarP(&opts.ConfigPath, "config", "c",
		getEnv("SEMRELAY_CONFIG", ""),
		"Path to configuration file (env: SEMRELAY_CONFIG)")

	fs.StringVarP(&opts.Workspace, "workspace", "w",
		getEnv("SEMRELAY_PROFILE", ""),
		"Stored workspace profile to use (env: SEMRELAY_PROFILE)")

	fs.StringVar(&opts.LogLevel, "log-level",
		getEnv("SEMRELAY_LOG_LEVEL", "warn"),
		"Log level: debug, info, warn, error (env: SEMRELAY_LOG_LEVEL)")

	fs.StringVar(&opts.LogFormat, "log-format",
		getEnv("SEMRELAY_LOG_FORMAT", "text"),
		"Log format: json, text (env: SEMRELAY_LOG_FORMAT)")

	fs.BoolVarP(&opts.ShowVersion, "version", "v", false, "Show version information")
	fs.BoolVarP(&opts.ShowHelp, "help", "h", false, "Show help information")
	return fs
}

func validateGlobalFlags(opts *globalOptions) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, opts.LogLevel) {
		return fmt.Errorf("invalid log level: %s", opts.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, opts.LogFormat) {
		return fmt.Errorf("invalid log format: %s", opts.LogFormat)
	}
	return nil
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
