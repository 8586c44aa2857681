package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// EnvConfigPath names the settings file explicitly.
const EnvConfigPath = "BASIC_CLEANING_CONFIG"

// DefaultConfigFile is looked up in the working directory when EnvConfigPath is unset.
const DefaultConfigFile = "basic-cleaning.yaml"

// envOverrides maps environment variables to the setting they replace.
var envOverrides = []struct {
	name  string
	apply func(s *Settings, v string)
}{
	{"BASIC_CLEANING_STORE_BACKEND", func(s *Settings, v string) { s.Store.Backend = v }},
	{"BASIC_CLEANING_STORE_ROOT", func(s *Settings, v string) { s.Store.Root = v }},
	{"BASIC_CLEANING_STORE_BUCKET", func(s *Settings, v string) { s.Store.Bucket = v }},
	{"BASIC_CLEANING_STORE_PREFIX", func(s *Settings, v string) { s.Store.Prefix = v }},
	{"BASIC_CLEANING_STORE_REGISTRY", func(s *Settings, v string) { s.Store.Registry = v }},
	{"BASIC_CLEANING_STORE_CACHE_DIR", func(s *Settings, v string) { s.Store.CacheDir = v }},
	{"BASIC_CLEANING_WORK_DIR", func(s *Settings, v string) { s.WorkDir = v }},
	{"BASIC_CLEANING_LOG_LEVEL", func(s *Settings, v string) { s.Log.Level = v }},
	{"BASIC_CLEANING_LOG_FORMAT", func(s *Settings, v string) { s.Log.Format = v }},
	{"BASIC_CLEANING_LOG_FILE", func(s *Settings, v string) { s.Log.File = v }},
}

// Load resolves the settings file, applies environment overrides and
// expands home-relative paths.
//
// Lookup order: $BASIC_CLEANING_CONFIG, then ./basic-cleaning.yaml when it
// exists, then built-in defaults.
func Load() (*Settings, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking %s: %w", DefaultConfigFile, err)
		}
	}
	return LoadFile(path)
}

// LoadFile loads settings from path, or from defaults when path is empty.
func LoadFile(path string) (*Settings, error) {
	settings := Defaults()

	if path != "" {
		result := ParseSettingsFile(path)
		if !result.IsValid() {
			return nil, joinErrors(path, result.AllErrors())
		}
		converted, err := ConvertToSettings(result.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		settings = converted
		settings.Source = path
	}

	applyEnv(settings)

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := settings.expandPaths(); err != nil {
		return nil, err
	}
	return settings, nil
}

func applyEnv(s *Settings) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok && v != "" {
			o.apply(s, v)
		}
	}
}

// Validate checks the invariants that environment overrides can break after
// schema validation has passed.
func (s *Settings) Validate() error {
	switch s.Store.Backend {
	case BackendLocal:
	case BackendS3, BackendGCS:
		if s.Store.Bucket == "" {
			return fmt.Errorf("store backend %q requires a bucket", s.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q (want %s, %s or %s)",
			s.Store.Backend, BackendLocal, BackendS3, BackendGCS)
	}
	if s.Durability.PollInterval > s.Durability.Timeout {
		return fmt.Errorf("durability poll interval %s exceeds timeout %s",
			s.Durability.PollInterval, s.Durability.Timeout)
	}
	return nil
}

func (s *Settings) expandPaths() error {
	for _, p := range []*string{&s.WorkDir, &s.Store.Root, &s.Store.Registry, &s.Store.CacheDir, &s.Log.File} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", *p, err)
		}
		*p = expanded
	}
	if strings.HasPrefix(s.Store.Credentials, "~") {
		expanded, err := homedir.Expand(s.Store.Credentials)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", s.Store.Credentials, err)
		}
		s.Store.Credentials = expanded
	}
	return nil
}

func joinErrors(path string, errs []error) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("invalid settings file %s: %s", path, strings.Join(msgs, "; "))
}
