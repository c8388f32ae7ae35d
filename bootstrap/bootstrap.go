package bootstrap

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"pkt.systems/codeforge/internal/appconfig"
	"pkt.systems/codeforge/internal/version"
)

const (
	configName         = "config.yaml"
	envName            = ".env"
	composeName        = "docker-compose.yaml"
	defaultServerImage = "docker.io/pktsystems/codeforge"
)

// Options tune the generated bundle.
type Options struct {
	// BackendURL is written to .env and the compose file. Empty uses the default backend.
	BackendURL string
	// Compose also renders a docker-compose.yaml next to the config.
	Compose bool
	// ImageTag overrides the server image tag. Empty uses the build version.
	ImageTag  string
	Overrides []ConfigOverride
}

// Paths lists the files written by WriteBootstrap.
type Paths struct {
	ConfigPath  string
	EnvPath     string
	ComposePath string
}

// ConfigOverride sets a dotted config key (for example codegen.framing) before writing.
type ConfigOverride struct {
	Path  string
	Value any
}

type templateData struct {
	ServerImage    string
	HostPort       string
	BackendURL     string
	HostConfigPath string
}

// ParseOverride parses key=value into a ConfigOverride. Values are decoded as
// YAML scalars so numbers and booleans keep their type.
func ParseOverride(raw string) (ConfigOverride, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return ConfigOverride{}, fmt.Errorf("invalid override %q (expected key=value)", raw)
	}
	var decoded any
	if err := yaml.Unmarshal([]byte(value), &decoded); err != nil || decoded == nil {
		decoded = value
	}
	return ConfigOverride{Path: key, Value: decoded}, nil
}

// DefaultConfigYAML renders the default config with overrides applied.
func DefaultConfigYAML(overrides []ConfigOverride) ([]byte, error) {
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		return nil, err
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return applyOverridesToYAML(raw, overrides)
}

// WriteBootstrap writes config.yaml and .env into outputDir, plus a compose
// file when requested. An empty outputDir uses the default config directory.
func WriteBootstrap(outputDir string, overwrite bool, opts Options) (Paths, error) {
	if strings.TrimSpace(outputDir) == "" {
		dir, err := appconfig.DefaultConfigDir()
		if err != nil {
			return Paths{}, err
		}
		outputDir = dir
	}
	rootDir, err := filepath.Abs(outputDir)
	if err != nil {
		rootDir = outputDir
	}
	paths := Paths{
		ConfigPath: filepath.Join(rootDir, configName),
		EnvPath:    filepath.Join(rootDir, envName),
	}
	if opts.Compose {
		paths.ComposePath = filepath.Join(rootDir, composeName)
	}
	if !overwrite {
		for _, path := range []string{paths.ConfigPath, paths.EnvPath, paths.ComposePath} {
			if path == "" {
				continue
			}
			if _, err := os.Stat(path); err == nil {
				return Paths{}, fmt.Errorf("file already exists: %s", path)
			}
		}
	}

	configYAML, err := DefaultConfigYAML(opts.Overrides)
	if err != nil {
		return Paths{}, err
	}
	var cfg appconfig.Config
	if err := yaml.Unmarshal(configYAML, &cfg); err != nil {
		return Paths{}, fmt.Errorf("apply overrides: %w", err)
	}
	backendURL := strings.TrimSpace(opts.BackendURL)
	if backendURL == "" {
		backendURL = cfg.Codegen.BaseURL
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return Paths{}, err
	}
	if err := os.WriteFile(paths.ConfigPath, configYAML, 0o600); err != nil {
		return Paths{}, err
	}
	if _, err := appconfig.WriteEnv(paths.EnvPath, backendURL, true); err != nil {
		return Paths{}, err
	}
	if opts.Compose {
		compose, err := renderComposeYAML(templateData{
			ServerImage:    tagImage(defaultServerImage, resolveImageTag(opts.ImageTag)),
			HostPort:       hostPort(cfg.HTTP.Addr),
			BackendURL:     backendURL,
			HostConfigPath: paths.ConfigPath,
		})
		if err != nil {
			return Paths{}, err
		}
		if err := os.WriteFile(paths.ComposePath, compose, 0o644); err != nil {
			return Paths{}, err
		}
	}
	return paths, nil
}

func hostPort(addr string) string {
	if _, port, err := net.SplitHostPort(addr); err == nil && port != "" {
		return port
	}
	return "12000"
}

func renderComposeYAML(data templateData) ([]byte, error) {
	return renderTemplate("templates/docker-compose.yaml.tmpl", data)
}

func renderTemplate(name string, data templateData) ([]byte, error) {
	raw, err := readEmbeddedFile(name)
	if err != nil {
		return nil, err
	}
	tpl, err := template.New(filepath.Base(name)).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func applyOverridesToYAML(configYAML []byte, overrides []ConfigOverride) ([]byte, error) {
	if len(overrides) == 0 {
		return configYAML, nil
	}
	var data map[string]any
	if err := yaml.Unmarshal(configYAML, &data); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		if err := setOverrideValue(data, override.Path, override.Value); err != nil {
			return nil, err
		}
	}
	return yaml.Marshal(data)
}

func setOverrideValue(root map[string]any, path string, value any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("config override path is required")
	}
	parts := strings.Split(path, ".")
	node := root
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return fmt.Errorf("invalid config override path %q", path)
		}
		if i == len(parts)-1 {
			node[part] = value
			return nil
		}
		next, ok := node[part]
		if !ok || next == nil {
			child := map[string]any{}
			node[part] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("config override %q: %q is not a map", path, part)
		}
		node = child
	}
	return nil
}

func resolveImageTag(override string) string {
	if value := strings.TrimSpace(override); value != "" {
		return value
	}
	value := strings.TrimSpace(version.Current())
	if value == "" {
		return "v0.0.0-unknown"
	}
	return value
}

func tagImage(base, tag string) string {
	base = stripImageTag(base)
	if base == "" {
		return ""
	}
	if strings.TrimSpace(tag) == "" {
		tag = "v0.0.0-unknown"
	}
	return base + ":" + tag
}

func stripImageTag(image string) string {
	image = strings.TrimSpace(image)
	if image == "" {
		return ""
	}
	if at := strings.LastIndex(image, "@"); at != -1 {
		image = image[:at]
	}
	lastSlash := strings.LastIndex(image, "/")
	lastColon := strings.LastIndex(image, ":")
	if lastColon > lastSlash {
		return image[:lastColon]
	}
	return image
}
