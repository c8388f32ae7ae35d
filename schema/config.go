package schema

import (
	"errors"
	"strings"
)

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	// TitleMaxRunes caps the tab title derived from the field description.
	TitleMaxRunes int
	// FallbackTitle is used when the trimmed description is empty.
	FallbackTitle TabTitle
	// TitleSuffixSep joins a title and its collision counter.
	TitleSuffixSep string
	// DefaultEntityName is sent when a request names no entity.
	DefaultEntityName string
	// DefaultFileType classifies files created by untyped fragments.
	DefaultFileType FileType
}

const (
	// DefaultTitleMaxRunes is the default tab title length.
	DefaultTitleMaxRunes = 20
	// DefaultFallbackTitle labels tabs whose input trims to nothing.
	DefaultFallbackTitle TabTitle = "生成内容"
	// DefaultEntityName is the entity placeholder sent to the backend.
	DefaultEntityName = "Entity"
)

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.TitleMaxRunes <= 0 {
		cfg.TitleMaxRunes = DefaultTitleMaxRunes
	}
	if strings.TrimSpace(string(cfg.FallbackTitle)) == "" {
		cfg.FallbackTitle = DefaultFallbackTitle
	}
	if cfg.TitleSuffixSep == "" {
		cfg.TitleSuffixSep = "_"
	}
	if strings.TrimSpace(cfg.DefaultEntityName) == "" {
		cfg.DefaultEntityName = DefaultEntityName
	}
	cfg.DefaultFileType = NormalizeFileType(string(cfg.DefaultFileType))
	if strings.ContainsAny(cfg.TitleSuffixSep, "\r\n") {
		return ServiceConfig{}, errors.New("title suffix separator must be a single line")
	}
	return cfg, nil
}
