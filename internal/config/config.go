// ABOUTME: Application configuration from environment and profile file
// ABOUTME: Env wins over the TOML profile, the profile wins over defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Output describes one locally available audio output in the profile.
type Output struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
	Kind string `toml:"kind"`
}

// Profile is the persisted part of the configuration: connection
// identity and the outputs to register. Stored as TOML.
type Profile struct {
	ConnectionID   string   `toml:"connection_id"`
	ConnectionName string   `toml:"connection_name"`
	APIURL         string   `toml:"api_url"`
	ClientID       string   `toml:"client_id"`
	SignatureToken string   `toml:"signature_token"`
	Outputs        []Output `toml:"outputs"`
}

// Config stores the application configuration.
type Config struct {
	ConnectionID   string
	ConnectionName string
	APIURL         string
	ClientID       string
	SignatureToken string
	APIToken       string

	Outputs []Output

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	ProfilePath string
}

const defaultProfilePath = "~/.config/zonesync/profile.toml"

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// Load loads configuration from the .env file, the environment and the
// TOML profile. A missing profile is not an error.
func Load(profilePath string) (*Config, error) {
	// godotenv.Load will not override existing env vars. A missing
	// .env file is the normal case.
	_ = godotenv.Load()

	if profilePath == "" {
		profilePath = getEnv("ZONESYNC_PROFILE", defaultProfilePath)
	}

	profile, err := LoadProfile(profilePath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ConnectionID:   getEnv("ZONESYNC_CONNECTION_ID", profile.ConnectionID),
		ConnectionName: getEnv("ZONESYNC_CONNECTION_NAME", profile.ConnectionName),
		APIURL:         getEnv("ZONESYNC_API_URL", profile.APIURL),
		ClientID:       getEnv("ZONESYNC_CLIENT_ID", profile.ClientID),
		SignatureToken: getEnv("ZONESYNC_SIGNATURE_TOKEN", profile.SignatureToken),
		APIToken:       os.Getenv("ZONESYNC_API_TOKEN"),
		Outputs:        profile.Outputs,
		LogLevel:       getEnv("ZONESYNC_LOG_LEVEL", "info"),
		LogFile:        getEnv("ZONESYNC_LOG_FILE", ""),
		LogMaxSizeMB:   getEnvInt("ZONESYNC_LOG_MAX_SIZE", 10),
		LogMaxBackups:  getEnvInt("ZONESYNC_LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays:  getEnvInt("ZONESYNC_LOG_MAX_AGE", 30),
		ProfilePath:    profilePath,
	}

	if cfg.ConnectionName == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.ConnectionName = host
		}
	}
	return cfg, nil
}

// LoadProfile reads the TOML profile from the given path, falling back
// to an empty profile when the file is missing.
func LoadProfile(path string) (Profile, error) {
	var profile Profile

	resolved, err := resolvePath(path)
	if err != nil {
		return profile, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return profile, nil
		}
		return profile, fmt.Errorf("read profile: %w", err)
	}

	if err := toml.Unmarshal(data, &profile); err != nil {
		return profile, fmt.Errorf("parse profile %s: %w", resolved, err)
	}
	return profile, nil
}

// SaveProfile writes the profile to the given path, creating
// directories as needed.
func SaveProfile(path string, profile Profile) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	data, err := toml.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
