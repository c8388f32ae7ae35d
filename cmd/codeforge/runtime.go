package main

import (
	"time"

	"pkt.systems/codeforge/httpapi"
	"pkt.systems/codeforge/internal/appconfig"
	"pkt.systems/codeforge/internal/codegen"
)

func newBackendClient(cfg appconfig.Config) (*codegen.Client, error) {
	framing, err := codegen.ParseFraming(cfg.Codegen.Framing)
	if err != nil {
		return nil, err
	}
	return codegen.New(codegen.Config{
		BaseURL:    cfg.Codegen.BaseURL,
		EntityName: cfg.Codegen.EntityName,
		Framing:    framing,
		StrictUTF8: cfg.Codegen.StrictUTF8,
		Timeout:    time.Duration(cfg.Codegen.RequestTimeoutSeconds) * time.Second,
	})
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:            cfg.Addr,
		SessionCookie:   cfg.SessionCookie,
		SessionTTLHours: cfg.SessionTTLHours,
		BaseURL:         cfg.BaseURL,
		BasePath:        cfg.BasePath,
		MaxUploadBytes:  int64(cfg.MaxUploadMB) << 20,
	}
}
