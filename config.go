package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the user configuration, read from
// $XDG_CONFIG_HOME/taskdex/config.toml.
type Config struct {
	DefaultProfile string             `toml:"default_profile"`
	Profiles       map[string]Profile `toml:"profiles"`

	// Dialect is the metadata format re-emitted on edits: "emoji"
	// (default) or "dataview". Both are always read.
	Dialect string `toml:"dialect"`

	// Statuses overrides the status-character → completed mapping.
	Statuses map[string]bool `toml:"statuses"`

	TabWidth int `toml:"tab_width"` // indentation chars per nesting level
	Workers  int `toml:"workers"`  // parse worker count, 0 disables offload
}

type Profile struct {
	Vault string `toml:"vault"`
	Query string `toml:"query"`
}

type ResolvedProfile struct {
	Name        string
	VaultPath   string
	Query       string
	QueryIsFile bool
}

type ProfileError struct {
	Profile string
	Field   string
	Err     error
}

func (e *ProfileError) Error() string {
	if e.Profile == "" {
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	}
	if e.Field == "" {
		return fmt.Sprintf("profile %q: %v", e.Profile, e.Err)
	}
	return fmt.Sprintf("profile %q: %s: %v", e.Profile, e.Field, e.Err)
}

func (e *ProfileError) Unwrap() error {
	return e.Err
}

var (
	ErrEmptyPath    = errors.New("path is empty")
	ErrPathNotExist = errors.New("path does not exist")
	ErrNotDirectory = errors.New("path is not a directory")
	ErrBadDialect   = errors.New("dialect must be \"emoji\" or \"dataview\"")
)

// parseOptions builds the parser settings the config implies.
func (c Config) parseOptions() ParseOptions {
	statuses := DefaultStatuses()
	for status, done := range c.Statuses {
		statuses[status] = done
	}
	return ParseOptions{Statuses: statuses}
}

func (c Config) dialect() string {
	if c.Dialect == "" {
		return dialectEmoji
	}
	return c.Dialect
}

func validateConfig(cfg Config) error {
	if cfg.Dialect != "" && cfg.Dialect != dialectEmoji && cfg.Dialect != dialectDataview {
		return &ProfileError{Field: "dialect", Err: ErrBadDialect}
	}
	if cfg.DefaultProfile != "" && cfg.Profiles != nil {
		if _, ok := cfg.Profiles[cfg.DefaultProfile]; !ok {
			return &ProfileError{Field: "default_profile", Err: fmt.Errorf("profile %q not found", cfg.DefaultProfile)}
		}
	}
	return nil
}

func validateProfile(name string, p Profile) error {
	if strings.TrimSpace(p.Vault) == "" {
		return &ProfileError{Profile: name, Field: "vault", Err: ErrEmptyPath}
	}
	return nil
}

func validateVaultExists(name, vaultPath string) error {
	info, err := os.Stat(vaultPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &ProfileError{Profile: name, Field: "vault", Err: fmt.Errorf("%w: %s", ErrPathNotExist, vaultPath)}
		}
		return &ProfileError{Profile: name, Field: "vault", Err: err}
	}
	if !info.IsDir() {
		return &ProfileError{Profile: name, Field: "vault", Err: fmt.Errorf("%w: %s", ErrNotDirectory, vaultPath)}
	}
	return nil
}

func selectProfile(profileFlag string, cfg Config) (string, *Profile, error) {
	if profileFlag != "" {
		if cfg.Profiles == nil {
			return "", nil, &ProfileError{Profile: profileFlag, Err: errors.New("no profiles defined in config")}
		}
		p, ok := cfg.Profiles[profileFlag]
		if !ok {
			return "", nil, &ProfileError{Profile: profileFlag, Err: errors.New("profile not found")}
		}
		return profileFlag, &p, nil
	}

	if cfg.DefaultProfile != "" {
		if cfg.Profiles == nil {
			return "", nil, &ProfileError{Field: "default_profile", Err: fmt.Errorf("profile %q not found", cfg.DefaultProfile)}
		}
		p, ok := cfg.Profiles[cfg.DefaultProfile]
		if !ok {
			return "", nil, &ProfileError{Field: "default_profile", Err: fmt.Errorf("profile %q not found", cfg.DefaultProfile)}
		}
		return cfg.DefaultProfile, &p, nil
	}

	return "", nil, nil
}

func resolveProfilePaths(name string, p Profile) (*ResolvedProfile, error) {
	if err := validateProfile(name, p); err != nil {
		return nil, err
	}

	vaultPath, err := resolveVaultPath(p.Vault)
	if err != nil {
		return nil, &ProfileError{Profile: name, Field: "vault", Err: err}
	}

	vaultPath = filepath.Clean(vaultPath)
	if resolved, err := filepath.EvalSymlinks(vaultPath); err == nil {
		vaultPath = resolved
	}

	if err := validateVaultExists(name, vaultPath); err != nil {
		return nil, err
	}

	// Query is optional; empty shows all tasks.
	query := strings.TrimSpace(p.Query)
	queryIsFile := false
	if query != "" {
		if queryPath, err := resolveQueryPath(query, vaultPath); err == nil {
			queryPath = filepath.Clean(queryPath)
			if info, statErr := os.Stat(queryPath); statErr == nil && !info.IsDir() {
				query = queryPath
				queryIsFile = true
			}
		}
	}

	return &ResolvedProfile{Name: name, VaultPath: vaultPath, Query: query, QueryIsFile: queryIsFile}, nil
}

func configPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "taskdex", "config.toml"), nil
}

func loadConfig() (Config, string, error) {
	path, err := configPath()
	if err != nil {
		return Config{}, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, path, nil
		}
		return Config{}, path, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return Config{}, path, err
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, path, err
	}
	return cfg, path, nil
}

func expandPath(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return value, nil
	}

	expanded := os.ExpandEnv(value)
	if !strings.HasPrefix(expanded, "~") {
		return expanded, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if expanded == "~" {
		return homeDir, nil
	}
	if strings.HasPrefix(expanded, "~/") || strings.HasPrefix(expanded, `~\`) {
		return filepath.Join(homeDir, expanded[2:]), nil
	}
	return expanded, nil
}

func resolveVaultPath(value string) (string, error) {
	expanded, err := expandPath(value)
	if err != nil {
		return "", err
	}
	if expanded == "" || filepath.IsAbs(expanded) {
		return expanded, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, expanded), nil
}

func resolveQueryPath(value, vault string) (string, error) {
	expanded, err := expandPath(value)
	if err != nil {
		return "", err
	}
	if expanded == "" || filepath.IsAbs(expanded) || vault == "" {
		return expanded, nil
	}
	return filepath.Join(vault, expanded), nil
}
