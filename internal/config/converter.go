package config

import (
	"fmt"
	"time"
)

// Default settings values.
const (
	DefaultProject      = "default"
	DefaultWorkDir      = "."
	DefaultBackend      = BackendLocal
	DefaultStoreRoot    = "artifacts"
	DefaultRegistryPath = "artifacts/registry.db"
	DefaultCacheDir     = ".cache/artifacts"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultTimeout      = 2 * time.Minute
	DefaultPollInterval = 500 * time.Millisecond
)

// Defaults returns the settings used when no file or environment override applies.
func Defaults() *Settings {
	return &Settings{
		Project: DefaultProject,
		WorkDir: DefaultWorkDir,
		Store: StoreSettings{
			Backend:  DefaultBackend,
			Root:     DefaultStoreRoot,
			Registry: DefaultRegistryPath,
			CacheDir: DefaultCacheDir,
		},
		Log: LogSettings{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Durability: DurabilitySettings{
			Timeout:      DefaultTimeout,
			PollInterval: DefaultPollInterval,
		},
	}
}

// ConvertToSettings overlays parsed settings data onto the defaults.
// The data should have been validated with ValidateSettings first.
//
// Expected structure:
//
//	project: nyc_airbnb
//	workDir: ./work
//	store: {backend, root, registry, cacheDir, bucket, prefix, ...}
//	log: {level, format, file}
//	durability: {timeout, pollInterval}
func ConvertToSettings(data map[string]interface{}) (*Settings, error) {
	s := Defaults()
	if data == nil {
		return s, nil
	}

	setString(data, "project", &s.Project)
	setString(data, "workDir", &s.WorkDir)

	if store, ok := data["store"].(map[string]interface{}); ok {
		setString(store, "backend", &s.Store.Backend)
		setString(store, "root", &s.Store.Root)
		setString(store, "registry", &s.Store.Registry)
		setString(store, "cacheDir", &s.Store.CacheDir)
		setString(store, "bucket", &s.Store.Bucket)
		setString(store, "prefix", &s.Store.Prefix)
		setString(store, "region", &s.Store.Region)
		setString(store, "endpoint", &s.Store.Endpoint)
		setString(store, "profile", &s.Store.Profile)
		setString(store, "accessKey", &s.Store.AccessKey)
		setString(store, "secretKey", &s.Store.SecretKey)
		setString(store, "sessionToken", &s.Store.SessionToken)
		setString(store, "credentials", &s.Store.Credentials)
		if v, ok := store["forcePathStyle"].(bool); ok {
			s.Store.ForcePathStyle = v
		}
	}

	if log, ok := data["log"].(map[string]interface{}); ok {
		setString(log, "level", &s.Log.Level)
		setString(log, "format", &s.Log.Format)
		setString(log, "file", &s.Log.File)
	}

	if durability, ok := data["durability"].(map[string]interface{}); ok {
		if err := setDuration(durability, "timeout", &s.Durability.Timeout); err != nil {
			return nil, err
		}
		if err := setDuration(durability, "pollInterval", &s.Durability.PollInterval); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func setString(data map[string]interface{}, key string, dst *string) {
	if v, ok := data[key].(string); ok && v != "" {
		*dst = v
	}
}

func setDuration(data map[string]interface{}, key string, dst *time.Duration) error {
	raw, ok := data[key].(string)
	if !ok || raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration for 'durability.%s': %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("'durability.%s' must be positive, got %s", key, raw)
	}
	*dst = d
	return nil
}
