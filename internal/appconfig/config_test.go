package appconfig

import (
	"testing"

	"pkt.systems/codeforge/schema"
)

func TestDefaultConfigTargetsLocalBackend(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Codegen.BaseURL != DefaultBackendURL {
		t.Fatalf("expected base url %q, got %q", DefaultBackendURL, cfg.Codegen.BaseURL)
	}
	if cfg.Codegen.StrictUTF8 {
		t.Fatalf("expected strict utf-8 to default false")
	}
}

func TestServiceSettings(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Codegen.EntityName = "Order"
	cfg.Service.TitleMaxRunes = 8
	settings := cfg.ServiceSettings()
	if settings.DefaultEntityName != "Order" {
		t.Fatalf("expected entity name Order, got %q", settings.DefaultEntityName)
	}
	if settings.TitleMaxRunes != 8 {
		t.Fatalf("expected title max runes 8, got %d", settings.TitleMaxRunes)
	}
	if settings.DefaultFileType != schema.FileTypeJava {
		t.Fatalf("expected java default file type, got %q", settings.DefaultFileType)
	}
}
