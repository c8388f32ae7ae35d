package codeforge

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/httpapi"
	"pkt.systems/codeforge/internal/eventbus"
	"pkt.systems/codeforge/schema"
	"pkt.systems/pslog"
)

// Server composes the tab service with its front ends.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Service exposes the shared tab service, for in-process front ends.
	Service() core.Service
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service    schema.ServiceConfig
	HTTP       httpapi.Config
	HubHistory int
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
	// Health backs the /api/health endpoint. Optional.
	Health httpapi.HealthChecker
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	bus        *eventbus.Bus
}

// WithHTTP enables the HTTP API/UI server.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithEventBus attaches an in-process event bus, as used by the terminal UI.
func WithEventBus(bus *eventbus.Bus) ServerOption {
	return func(o *serverOptions) { o.bus = bus }
}

// New constructs a composable codeforge server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && options.bus == nil {
		return nil, errors.New("no front ends enabled")
	}
	if deps.ServiceDeps.Generator == nil {
		return nil, errors.New("generator dependency is required")
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized

	var hub *httpapi.Hub
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HubHistory)
	}

	serviceDeps := deps.ServiceDeps
	sinks := make([]core.EventSink, 0, 3)
	if serviceDeps.EventSink != nil {
		sinks = append(sinks, serviceDeps.EventSink)
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	if options.bus != nil {
		sinks = append(sinks, options.bus)
	}
	switch len(sinks) {
	case 0:
	case 1:
		serviceDeps.EventSink = sinks[0]
	default:
		serviceDeps.EventSink = eventFanout{sinks: sinks}
	}

	service, err := core.NewService(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}

	var httpSrv *httpapi.Server
	if options.enableHTTP {
		httpSrv = httpapi.NewServer(cfg.HTTP, service, deps.Health, hub)
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		service: service,
		httpSrv: httpSrv,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	service core.Service
	httpSrv *httpapi.Server
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Service() core.Service {
	return s.service
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"event_bus", s.options.bus != nil,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_url", s.cfg.HTTP.BaseURL,
		"http_base_path", s.cfg.HTTP.BasePath,
	)
	if s.options.enableHTTP && s.httpSrv != nil {
		go s.httpSrv.SweepSessions(s.ctx)
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop cancels in-flight streams and shuts down the front ends.
func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if s.service != nil {
		closeCtx := ctx
		if closeCtx == nil {
			closeCtx = context.Background()
		}
		if err := s.service.CloseAll(closeCtx); err != nil {
			log.Warn("server stream close failed", "err", err)
		} else {
			log.Info("server stream close ok")
		}
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
