package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/c360/semrelay/errors"
)

// Profile is a named set of credentials. The profile name doubles as the
// workspace identifier sent to the gateway.
type Profile struct {
	Name        string `toml:"name"`
	APIKey      string `toml:"api_key"`
	IngestURL   string `toml:"ingest_url,omitempty"`
	Description string `toml:"description,omitempty"`
}

func (p *Profile) apply(cfg *Config) {
	if p.APIKey != "" {
		cfg.APIKey = p.APIKey
	}
	if p.IngestURL != "" {
		cfg.IngestURL = p.IngestURL
	}
	if p.Name != "" {
		cfg.Workspace = p.Name
	}
}

// Workspaces is the on-disk store of profiles and the current selection
type Workspaces struct {
	Current  string             `toml:"current,omitempty"`
	Profiles map[string]Profile `toml:"workspaces"`

	path string
}

// DefaultWorkspacesPath returns ~/.semrelay/workspaces.toml
func DefaultWorkspacesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "Workspaces", "DefaultWorkspacesPath", "resolve home directory")
	}
	return filepath.Join(home, ".semrelay", "workspaces.toml"), nil
}

// LoadWorkspaces reads the store at path. A missing file yields an empty store.
func LoadWorkspaces(path string) (*Workspaces, error) {
	ws := &Workspaces{Profiles: map[string]Profile{}, path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ws, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Workspaces", "LoadWorkspaces", "read workspace file")
	}
	if len(data) > maxConfigSize {
		return nil, errors.WrapFatal(fmt.Errorf("workspace file too large: %d bytes", len(data)),
			"Workspaces", "LoadWorkspaces", "size check")
	}

	if err := toml.Unmarshal(data, ws); err != nil {
		return nil, errors.WrapFatal(err, "Workspaces", "LoadWorkspaces", "parse workspace file")
	}
	if ws.Profiles == nil {
		ws.Profiles = map[string]Profile{}
	}
	return ws, nil
}

// Save writes the store, creating its directory if needed
func (w *Workspaces) Save() error {
	if w.path == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Workspaces", "Save", "resolve path")
	}

	data, err := toml.Marshal(w)
	if err != nil {
		return errors.Wrap(err, "Workspaces", "Save", "encode workspaces")
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0700); err != nil {
		return errors.Wrap(err, "Workspaces", "Save", "create directory")
	}
	if err := os.WriteFile(w.path, data, 0600); err != nil {
		return errors.Wrap(err, "Workspaces", "Save", "write workspace file")
	}
	return nil
}

// Add stores a profile, replacing any profile of the same name
func (w *Workspaces) Add(p Profile) error {
	if p.Name == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: profile name is required", errors.ErrInvalidConfig),
			"Workspaces", "Add", "validate profile")
	}
	if len(p.APIKey) < MinAPIKeyLength {
		return errors.WrapInvalid(
			fmt.Errorf("%w: api_key must be at least %d characters", errors.ErrInvalidConfig, MinAPIKeyLength),
			"Workspaces", "Add", "validate profile")
	}
	w.Profiles[p.Name] = p
	if w.Current == "" {
		w.Current = p.Name
	}
	return nil
}

// Use selects the current profile
func (w *Workspaces) Use(name string) error {
	if _, ok := w.Profiles[name]; !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: workspace %q", errors.ErrNotFound, name),
			"Workspaces", "Use", "select workspace")
	}
	w.Current = name
	return nil
}

// Remove deletes a profile and clears the selection if it was current
func (w *Workspaces) Remove(name string) error {
	if _, ok := w.Profiles[name]; !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: workspace %q", errors.ErrNotFound, name),
			"Workspaces", "Remove", "remove workspace")
	}
	delete(w.Profiles, name)
	if w.Current == name {
		w.Current = ""
	}
	return nil
}

// List returns the profiles sorted by name
func (w *Workspaces) List() []Profile {
	out := make([]Profile, 0, len(w.Profiles))
	for _, p := range w.Profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CurrentProfile returns the selected profile, if any
func (w *Workspaces) CurrentProfile() (*Profile, bool) {
	if w.Current == "" {
		return nil, false
	}
	p, ok := w.Profiles[w.Current]
	if !ok {
		return nil, false
	}
	return &p, true
}

// ToConfig builds a configuration from the current profile
func (w *Workspaces) ToConfig() (*Config, error) {
	p, ok := w.CurrentProfile()
	if !ok {
		return nil, errors.WrapFatal(fmt.Errorf("%w: no workspace selected", errors.ErrMissingConfig),
			"Workspaces", "ToConfig", "select workspace")
	}
	cfg := Default()
	p.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
