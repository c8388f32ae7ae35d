package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/codeforge/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	EnvFile       string        `mapstructure:"env_file" yaml:"env_file"`
	Codegen       CodegenConfig `mapstructure:"codegen" yaml:"codegen"`
	Service       ServiceConfig `mapstructure:"service" yaml:"service"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
	TUI           TUIConfig     `mapstructure:"tui" yaml:"tui"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// CodegenConfig configures the code generation backend client.
type CodegenConfig struct {
	BaseURL               string `mapstructure:"base_url" yaml:"base_url"`
	EntityName            string `mapstructure:"entity_name" yaml:"entity_name"`
	Framing               string `mapstructure:"framing" yaml:"framing"`
	StrictUTF8            bool   `mapstructure:"strict_utf8" yaml:"strict_utf8"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// ServiceConfig controls tab naming and file defaults.
type ServiceConfig struct {
	TitleMaxRunes   int    `mapstructure:"title_max_runes" yaml:"title_max_runes"`
	FallbackTitle   string `mapstructure:"fallback_title" yaml:"fallback_title"`
	TitleSuffixSep  string `mapstructure:"title_suffix_sep" yaml:"title_suffix_sep"`
	DefaultFileType string `mapstructure:"default_file_type" yaml:"default_file_type"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string `mapstructure:"addr" yaml:"addr"`
	SessionCookie   string `mapstructure:"session_cookie" yaml:"session_cookie"`
	SessionTTLHours int    `mapstructure:"session_ttl_hours" yaml:"session_ttl_hours"`
	BaseURL         string `mapstructure:"base_url" yaml:"base_url"`
	BasePath        string `mapstructure:"base_path" yaml:"base_path"`
	HubHistory      int    `mapstructure:"hub_history" yaml:"hub_history"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}

// TUIConfig configures the terminal UI.
type TUIConfig struct {
	Workspace string `mapstructure:"workspace" yaml:"workspace"`
}

// DefaultBackendURL is the development backend address.
const DefaultBackendURL = "http://localhost:18080"

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		EnvFile:       "",
		Codegen: CodegenConfig{
			BaseURL:               DefaultBackendURL,
			EntityName:            schema.DefaultEntityName,
			Framing:               "auto",
			StrictUTF8:            false,
			RequestTimeoutSeconds: 0,
		},
		Service: ServiceConfig{
			TitleMaxRunes:   schema.DefaultTitleMaxRunes,
			FallbackTitle:   string(schema.DefaultFallbackTitle),
			TitleSuffixSep:  "_",
			DefaultFileType: string(schema.FileTypeJava),
		},
		HTTP: HTTPConfig{
			Addr:            ":12000",
			SessionCookie:   "codeforge_session",
			SessionTTLHours: 720,
			BaseURL:         "",
			BasePath:        "",
			HubHistory:      256,
			MaxUploadMB:     32,
		},
		TUI: TUIConfig{
			Workspace: "local",
		},
	}, nil
}

// DefaultConfigDir returns the directory holding config.yaml and .env.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".codeforge"), nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ServiceSettings converts the service section into core service settings.
func (c Config) ServiceSettings() schema.ServiceConfig {
	return schema.ServiceConfig{
		TitleMaxRunes:     c.Service.TitleMaxRunes,
		FallbackTitle:     schema.TabTitle(c.Service.FallbackTitle),
		TitleSuffixSep:    c.Service.TitleSuffixSep,
		DefaultEntityName: c.Codegen.EntityName,
		DefaultFileType:   schema.FileType(c.Service.DefaultFileType),
	}
}
