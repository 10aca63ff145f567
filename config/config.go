package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/c360/semrelay/errors"
	"github.com/c360/semrelay/pkg/tlsutil"
)

// Defaults
const (
	DefaultIngestURL         = "https://api.semrelay.dev/ingest"
	DefaultTimeout           = 30 * time.Second
	DefaultBatchSize         = 100
	DefaultReconnectInterval = 5 * time.Second

	// MaxBatchSize is the largest batch the gateway accepts without complaint
	MaxBatchSize = 1000

	// MinAPIKeyLength is the shortest credential considered well-formed
	MinAPIKeyLength = 16

	envPrefix = "SEMRELAY"
)

// DefaultFileNames are searched, in order, in the working directory
var DefaultFileNames = []string{
	".semrelayrc",
	".semrelayrc.json",
	".semrelayrc.yaml",
	".semrelayrc.yml",
}

// Config is the connection and tuning configuration shared read-only by every
// component. It is loaded once per process and passed explicitly.
type Config struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	IngestURL string `json:"ingest_url" yaml:"ingest_url"`
	Workspace string `json:"workspace" yaml:"workspace"`

	Timeout             time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	BatchSize           int           `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	ReconnectInterval   time.Duration `json:"reconnect_interval,omitempty" yaml:"reconnect_interval,omitempty"`
	Compress            bool          `json:"compress,omitempty" yaml:"compress,omitempty"`
	SignPayloads        bool          `json:"sign_payloads,omitempty" yaml:"sign_payloads,omitempty"`
	MaxBatchesPerSecond float64       `json:"max_batches_per_second,omitempty" yaml:"max_batches_per_second,omitempty"`

	// TLS customizes trust and client certificates for self-hosted gateways
	TLS tlsutil.ClientConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// Default returns a configuration with every tuning field set
func Default() *Config {
	return &Config{
		IngestURL:         DefaultIngestURL,
		Timeout:           DefaultTimeout,
		BatchSize:         DefaultBatchSize,
		ReconnectInterval: DefaultReconnectInterval,
	}
}

// Validate checks the configuration. Every failure is fatal: nothing downstream can
// recover from a bad credential or endpoint.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return configError(errors.ErrMissingConfig, "api_key is required")
	}
	if len(c.APIKey) < MinAPIKeyLength {
		return configError(errors.ErrInvalidConfig,
			fmt.Sprintf("api_key must be at least %d characters", MinAPIKeyLength))
	}
	if c.Workspace == "" {
		return configError(errors.ErrMissingConfig, "workspace is required")
	}
	if c.IngestURL == "" {
		return configError(errors.ErrMissingConfig, "ingest_url is required")
	}
	u, err := url.Parse(c.IngestURL)
	if err != nil {
		return configError(errors.ErrInvalidConfig, fmt.Sprintf("ingest_url is not a valid URL: %v", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return configError(errors.ErrInvalidConfig,
			fmt.Sprintf("ingest_url must use http or https, got %q", u.Scheme))
	}
	if u.Host == "" {
		return configError(errors.ErrInvalidConfig, "ingest_url must include a host")
	}
	if c.Timeout <= 0 {
		return configError(errors.ErrInvalidConfig, "timeout must be positive")
	}
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return configError(errors.ErrInvalidConfig,
			fmt.Sprintf("batch_size must be between 1 and %d", MaxBatchSize))
	}
	if c.ReconnectInterval <= 0 {
		return configError(errors.ErrInvalidConfig, "reconnect_interval must be positive")
	}
	if c.MaxBatchesPerSecond < 0 {
		return configError(errors.ErrInvalidConfig, "max_batches_per_second cannot be negative")
	}
	if err := c.TLS.Validate(); err != nil {
		return configError(errors.ErrInvalidConfig, "tls: "+err.Error())
	}
	return nil
}

func configError(sentinel error, detail string) error {
	return errors.WrapFatal(fmt.Errorf("%w: %s", sentinel, detail), "Config", "Validate", "configuration check")
}

// Clone returns a copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	copied := *c
	copied.TLS.CAFiles = append([]string(nil), c.TLS.CAFiles...)
	return &copied
}

// Redacted returns a copy safe to print, with the credential masked
func (c *Config) Redacted() *Config {
	r := c.Clone()
	r.APIKey = MaskKey(r.APIKey)
	return r
}

// MaskKey keeps the first and last four characters of a credential
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// String returns a JSON representation with the credential masked
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted().toMap(), "", "  ")
	return string(data)
}

// toMap renders the config with human-readable durations for saving
func (c *Config) toMap() map[string]any {
	m := map[string]any{
		"api_key":            c.APIKey,
		"ingest_url":         c.IngestURL,
		"workspace":          c.Workspace,
		"timeout":            c.Timeout.String(),
		"batch_size":         c.BatchSize,
		"reconnect_interval": c.ReconnectInterval.String(),
	}
	if c.Compress {
		m["compress"] = true
	}
	if c.SignPayloads {
		m["sign_payloads"] = true
	}
	if c.MaxBatchesPerSecond > 0 {
		m["max_batches_per_second"] = c.MaxBatchesPerSecond
	}
	if !c.TLS.IsZero() {
		m["tls"] = c.TLS
	}
	return m
}

// SaveToFile writes the configuration as YAML when the path ends in .yaml or .yml
// and as JSON otherwise. The file is readable by the owner only.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAMLPath(path) {
		data, err = yaml.Marshal(c.toMap())
	} else {
		data, err = json.MarshalIndent(c.toMap(), "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "encode config")
	}

	if err := safeWriteFile(path, data); err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "write config")
	}
	return nil
}

// Loader handles configuration loading with layers and overrides.
// Precedence, lowest first: defaults, workspace profile, file layers, environment.
type Loader struct {
	layers     []string
	profile    *Profile
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader with validation enabled
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		envPrefix:  envPrefix,
		getenv:     os.Getenv,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// UseProfile applies a workspace profile beneath the file layers
func (l *Loader) UseProfile(p *Profile) {
	l.profile = p
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.profile != nil {
		l.profile.apply(cfg)
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		merged, err := mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapFatal(err, "Loader", "Load", fmt.Sprintf("decode %s", path))
		}
		cfg = merged
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// HasEnvCredentials reports whether the environment alone names a credential and
// workspace, in which case no configuration file is required.
func (l *Loader) HasEnvCredentials() bool {
	return l.getenv(l.envPrefix+"_API_KEY") != "" && l.getenv(l.envPrefix+"_WORKSPACE") != ""
}

// loadRaw reads a JSON (comments allowed) or YAML file into a map
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if isYAMLPath(path) || (!isJSONPath(path) && !looksLikeJSON(data)) {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	} else {
		data = jsonc.ToJSON(data)
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	}

	parseDurations(raw)
	return raw, nil
}

// durationFields are config keys that accept duration strings such as "5s"
var durationFields = []string{"timeout", "reconnect_interval"}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(data map[string]any) {
	for _, key := range durationFields {
		if s, ok := data[key].(string); ok {
			if d, err := time.ParseDuration(s); err == nil {
				data[key] = d.Nanoseconds()
			}
		}
	}
}

// mergeFromMap overrides only the fields present in the map
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var merged map[string]any
	if err := json.Unmarshal(baseJSON, &merged); err != nil {
		return nil, err
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		merged[k] = v
	}

	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(mergedJSON, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	lookup := func(name string) (string, error) {
		key := l.envPrefix + "_" + name
		val := l.getenv(key)
		if err := validateEnvVar(key, val); err != nil {
			return "", errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
				"Loader", "applyEnvOverrides", "read environment")
		}
		return val, nil
	}
	invalid := func(key, val string, err error) error {
		return errors.WrapFatal(
			fmt.Errorf("%w: %s_%s=%q: %v", errors.ErrInvalidConfig, l.envPrefix, key, val, err),
			"Loader", "applyEnvOverrides", "parse environment")
	}

	for _, s := range []struct {
		name string
		dst  *string
	}{
		{"API_KEY", &cfg.APIKey},
		{"WORKSPACE", &cfg.Workspace},
		{"INGEST_URL", &cfg.IngestURL},
	} {
		val, err := lookup(s.name)
		if err != nil {
			return err
		}
		if val != "" {
			*s.dst = val
		}
	}

	if val, err := lookup("TIMEOUT"); err != nil {
		return err
	} else if val != "" {
		d, perr := time.ParseDuration(val)
		if perr != nil {
			return invalid("TIMEOUT", val, perr)
		}
		cfg.Timeout = d
	}

	if val, err := lookup("BATCH_SIZE"); err != nil {
		return err
	} else if val != "" {
		n, perr := strconv.Atoi(val)
		if perr != nil {
			return invalid("BATCH_SIZE", val, perr)
		}
		cfg.BatchSize = n
	}

	if val, err := lookup("COMPRESS"); err != nil {
		return err
	} else if val != "" {
		b, perr := strconv.ParseBool(val)
		if perr != nil {
			return invalid("COMPRESS", val, perr)
		}
		cfg.Compress = b
	}

	return nil
}

// FindFile returns the first default config file present in dir
func FindFile(dir string) (string, error) {
	for _, name := range DefaultFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", errors.WrapFatal(errors.ErrConfigNotFound, "Config", "FindFile",
		fmt.Sprintf("search %s", dir))
}

// DefaultPath is where init writes a new configuration
func DefaultPath(dir string) string {
	return filepath.Join(dir, ".semrelayrc.json")
}

// Options selects the configuration sources for Resolve
type Options struct {
	// File is an explicit configuration file; when empty the working directory is searched
	File string
	// Dir is the directory searched for default file names
	Dir string
	// Profile applies a stored workspace profile beneath any file
	Profile *Profile
}

// Resolve loads the configuration for a command run. Environment variables win over
// files; when the environment already carries credentials no file is required.
func Resolve(opts Options) (*Config, error) {
	loader := NewLoader()
	loader.UseProfile(opts.Profile)

	switch {
	case opts.File != "":
		loader.AddLayer(opts.File)
	default:
		dir := opts.Dir
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, errors.WrapFatal(err, "Config", "Resolve", "get working directory")
			}
			dir = wd
		}
		path, err := FindFile(dir)
		switch {
		case err == nil:
			loader.AddLayer(path)
		case opts.Profile == nil && !loader.HasEnvCredentials():
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: run 'semrelay init' or set %s_API_KEY and %s_WORKSPACE",
					errors.ErrConfigNotFound, envPrefix, envPrefix),
				"Config", "Resolve", "locate configuration")
		}
	}

	return loader.Load()
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func isJSONPath(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".json"
}

func looksLikeJSON(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "/*")
}
