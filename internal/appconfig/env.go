package appconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// EnvAPIURL overrides codegen.base_url.
	EnvAPIURL = "CODEFORGE_API_URL"
	// EnvViteAPIURL is honored after EnvAPIURL so existing front-end .env files keep working.
	EnvViteAPIURL = "VITE_API_URL"
)

// envLookup resolves a variable from the process environment first, then
// from the loaded .env values. Empty process values count as unset.
type envLookup func(key string) (string, bool)

// readDotEnv merges the given .env files. Earlier files win; missing files
// are skipped.
func readDotEnv(paths ...string) (map[string]string, error) {
	values := make(map[string]string)
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		parsed, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for key, value := range parsed {
			if _, ok := values[key]; !ok {
				values[key] = value
			}
		}
	}
	return values, nil
}

func newEnvLookup(dotenv map[string]string) envLookup {
	return func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return value, true
		}
		value, ok := dotenv[key]
		return value, ok
	}
}

// envFiles lists .env candidates: an explicit env_file, the file next to
// the config, and the working directory.
func envFiles(configPath, explicit string) []string {
	files := make([]string, 0, 3)
	if explicit != "" {
		files = append(files, explicit)
	}
	if configPath != "" {
		files = append(files, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	files = append(files, ".env")
	return files
}

// applyEnvOverrides sets codegen.base_url from the first non-empty of the
// process CODEFORGE_API_URL, the process VITE_API_URL, then the same two
// keys in the loaded .env values.
func applyEnvOverrides(cfg *Config, dotenv map[string]string) {
	if cfg == nil {
		return
	}
	keys := []string{EnvAPIURL, EnvViteAPIURL}
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			cfg.Codegen.BaseURL = value
			return
		}
	}
	for _, key := range keys {
		if value := strings.TrimSpace(dotenv[key]); value != "" {
			cfg.Codegen.BaseURL = value
			return
		}
	}
}

// WriteEnv writes a .env file pointing the client at baseURL.
func WriteEnv(path, baseURL string, overwrite bool) (string, error) {
	if path == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(dir, ".env")
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", errors.New(".env already exists at " + path)
		}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBackendURL
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := godotenv.Write(map[string]string{EnvAPIURL: baseURL}, path); err != nil {
		return "", err
	}
	return path, nil
}
