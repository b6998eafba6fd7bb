package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment overrides for secrets and endpoints
const (
	EnvStoreURI      = "KGRAG_STORE_URI"
	EnvStorePassword = "KGRAG_STORE_PASSWORD"
	EnvLLMAPIKey     = "KGRAG_LLM_API_KEY"
	EnvLLMBaseURL    = "KGRAG_LLM_BASE_URL"
)

// ConfigVersion is written by init
const ConfigVersion = "1"

// LoadGlobalConfigFromPath loads global config from a specific path using provided FileSystem.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func LoadGlobalConfigFromPath(path string, fs FileSystem) (*GlobalConfig, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if isTOML(path) {
		err = toml.Unmarshal(data, &config)
	} else {
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Validate active profile exists
	if config.ActiveProfile == "" {
		return nil, fmt.Errorf("active_profile not specified in config")
	}

	if _, ok := config.Profiles[config.ActiveProfile]; !ok {
		return nil, fmt.Errorf("active profile %s not found in config", config.ActiveProfile)
	}

	return &config, nil
}

// LoadProfile loads the named profile (or the active one) from path, applies
// defaults and environment overrides, resolves relative paths against the
// config file's directory and validates the result. A missing file at the
// default location yields the built-in defaults.
func LoadProfile(path, name string, fsys FileSystem) (*Profile, error) {
	explicit := path != ""
	if !explicit {
		home, err := fsys.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".kgrag", "config.yaml")
	}

	var (
		profile *Profile
		baseDir string
	)

	global, err := LoadGlobalConfigFromPath(path, fsys)
	switch {
	case err == nil:
		if name == "" {
			name = global.ActiveProfile
		}
		p, ok := global.Profiles[name]
		if !ok || p == nil {
			return nil, fmt.Errorf("profile %s not found in %s", name, path)
		}
		profile = p
		profile.ConfigPath = path
		baseDir = filepath.Dir(path)
	case !explicit && errors.Is(err, fs.ErrNotExist):
		if name != "" && name != DefaultProfileName {
			return nil, fmt.Errorf("profile %s requested but no config file at %s", name, path)
		}
		slog.Debug("Config not found, using defaults", "path", path)
		name = DefaultProfileName
		profile = &Profile{}
		if baseDir, err = fsys.Abs("."); err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	default:
		return nil, err
	}

	profile.Name = name
	profile.ApplyDefaults()
	applyEnv(profile, fsys)

	if profile.InputDir, err = ResolveRelativePath(baseDir, profile.InputDir); err != nil {
		return nil, fmt.Errorf("failed to resolve input_dir: %w", err)
	}
	if profile.StateFile, err = ResolveRelativePath(baseDir, profile.StateFile); err != nil {
		return nil, fmt.Errorf("failed to resolve state_file: %w", err)
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", name, err)
	}
	return profile, nil
}

// DefaultGlobalConfig returns the configuration written by init
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Version:       ConfigVersion,
		ActiveProfile: DefaultProfileName,
		Profiles:      map[string]*Profile{DefaultProfileName: DefaultProfile()},
	}
}

// Encode serializes cfg in the format implied by path's extension
func Encode(cfg *GlobalConfig, path string) ([]byte, error) {
	if isTOML(path) {
		return toml.Marshal(cfg)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

func applyEnv(p *Profile, fsys FileSystem) {
	if v := fsys.Getenv(EnvStoreURI); v != "" {
		p.Store.URI = v
	}
	if v := fsys.Getenv(EnvStorePassword); v != "" {
		p.Store.Password = v
	}
	if v := fsys.Getenv(EnvLLMAPIKey); v != "" {
		p.LLM.APIKey = v
	}
	if v := fsys.Getenv(EnvLLMBaseURL); v != "" {
		p.LLM.BaseURL = v
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
