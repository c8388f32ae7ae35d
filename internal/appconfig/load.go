package appconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/codeforge/internal/codegen"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults. Values from .env files and the process
// environment are applied last.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("env_file", cfg.EnvFile)
	v.SetDefault("codegen.base_url", cfg.Codegen.BaseURL)
	v.SetDefault("codegen.entity_name", cfg.Codegen.EntityName)
	v.SetDefault("codegen.framing", cfg.Codegen.Framing)
	v.SetDefault("codegen.strict_utf8", cfg.Codegen.StrictUTF8)
	v.SetDefault("codegen.request_timeout_seconds", cfg.Codegen.RequestTimeoutSeconds)
	v.SetDefault("service.title_max_runes", cfg.Service.TitleMaxRunes)
	v.SetDefault("service.fallback_title", cfg.Service.FallbackTitle)
	v.SetDefault("service.title_suffix_sep", cfg.Service.TitleSuffixSep)
	v.SetDefault("service.default_file_type", cfg.Service.DefaultFileType)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.session_cookie", cfg.HTTP.SessionCookie)
	v.SetDefault("http.session_ttl_hours", cfg.HTTP.SessionTTLHours)
	v.SetDefault("http.base_url", cfg.HTTP.BaseURL)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.hub_history", cfg.HTTP.HubHistory)
	v.SetDefault("http.max_upload_mb", cfg.HTTP.MaxUploadMB)
	v.SetDefault("tui.workspace", cfg.TUI.Workspace)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	dotenv, err := readDotEnv(envFiles(path, expandEnv(cfg.EnvFile, nil))...)
	if err != nil {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}
	expandConfigEnv(&cfg, newEnvLookup(dotenv))
	applyEnvOverrides(&cfg, dotenv)

	if err := validateCodegenConfig(cfg.Codegen); err != nil {
		return Config{}, err
	}
	if err := validateServiceConfig(cfg.Service); err != nil {
		return Config{}, err
	}
	if err := validateHTTPConfig(cfg.HTTP); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateCodegenConfig(cfg CodegenConfig) error {
	parsed, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("codegen.base_url must be an http(s) URL (e.g. %s)", DefaultBackendURL)
	}
	if _, err := codegen.ParseFraming(cfg.Framing); err != nil {
		return fmt.Errorf("codegen.framing: %w", err)
	}
	if cfg.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("codegen.request_timeout_seconds must not be negative")
	}
	return nil
}

func validateServiceConfig(cfg ServiceConfig) error {
	if cfg.TitleMaxRunes < 0 {
		return fmt.Errorf("service.title_max_runes must not be negative")
	}
	if strings.ContainsAny(cfg.TitleSuffixSep, "\r\n") {
		return fmt.Errorf("service.title_suffix_sep must be a single line")
	}
	return nil
}

func validateHTTPConfig(cfg HTTPConfig) error {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("http.base_url must include scheme and host (e.g. https://example.com)")
		}
	}
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	if cfg.HubHistory < 0 {
		return fmt.Errorf("http.hub_history must not be negative")
	}
	if cfg.MaxUploadMB < 0 {
		return fmt.Errorf("http.max_upload_mb must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config, lookup envLookup) {
	if cfg == nil {
		return
	}
	cfg.EnvFile = expandEnv(cfg.EnvFile, lookup)
	cfg.Codegen.BaseURL = expandEnv(cfg.Codegen.BaseURL, lookup)
	cfg.HTTP.BaseURL = expandEnv(cfg.HTTP.BaseURL, lookup)
	cfg.HTTP.Addr = expandEnv(cfg.HTTP.Addr, lookup)
}

func expandEnv(value string, lookup envLookup) string {
	if value == "" {
		return value
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookup(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
