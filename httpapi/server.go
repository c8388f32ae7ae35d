package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/internal/logx"
	"pkt.systems/codeforge/schema"
)

// HealthChecker probes the code generation backend.
type HealthChecker interface {
	Health(ctx context.Context) (schema.HealthReport, error)
}

const (
	defaultSessionCookie  = "codeforge_session"
	sessionIssuedHeader   = "X-Codeforge-Session-Issued"
	defaultMaxUploadBytes = 32 << 20
	uploadFormField       = "multipartFile"
)

// anonymousWorkspace serves cookieless reads. Session workspaces are "ws-"
// plus 16 random characters, so nothing ever writes here.
const anonymousWorkspace = schema.WorkspaceID("anonymous")

// Server serves the HTTP API and UI.
type Server struct {
	cfg      Config
	service  core.Service
	health   HealthChecker
	sessions *sessionStore
	hub      *Hub
	basePath string
	baseHref string
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, service core.Service, health HealthChecker, hub *Hub) *Server {
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	if strings.TrimSpace(cfg.SessionCookie) == "" {
		cfg.SessionCookie = defaultSessionCookie
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if hub == nil {
		hub = NewHub(0)
	}
	s := &Server{
		cfg:      cfg,
		service:  service,
		health:   health,
		sessions: newSessionStore(ttl),
		hub:      hub,
		basePath: normalizeBasePath(cfg.BasePath),
		baseHref: buildBaseHref(cfg.BaseURL, cfg.BasePath),
	}
	s.sessions.onExpire = s.releaseWorkspace
	return s
}

// SweepSessions drops expired sessions and their workspaces until ctx is
// done. Sessions are also swept opportunistically when new ones are issued.
func (s *Server) SweepSessions(ctx context.Context) {
	ticker := time.NewTicker(s.sessions.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.sweep(); n > 0 {
				logx.Ctx(ctx).Debug("http sessions swept", "expired", n)
			}
		}
	}
}

func (s *Server) releaseWorkspace(entry session) {
	ctx := context.Background()
	if _, err := s.service.ReleaseWorkspace(ctx, schema.ReleaseWorkspaceRequest{Workspace: entry.workspace}); err != nil {
		logx.WithWorkspace(ctx, entry.workspace).Warn("http workspace release failed", "err", err)
	}
	s.hub.DropWorkspace(entry.workspace)
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.FS(assetsFS))))
	mux.HandleFunc("/healthz", s.handleLiveness)

	mux.HandleFunc("/api/tabs", s.withWorkspace(s.handleTabs))
	mux.HandleFunc("/api/tabs/activate", s.withWorkspace(s.handleActivate))
	mux.HandleFunc("/api/tabs/close", s.withWorkspace(s.handleClose))
	mux.HandleFunc("/api/tabs/get", s.withWorkspace(s.handleGetTab))
	mux.HandleFunc("/api/generate", s.withSession(s.handleGenerate))
	mux.HandleFunc("/api/upload", s.withSession(s.handleUpload))
	mux.HandleFunc("/api/health", s.withWorkspace(s.handleHealth))
	mux.HandleFunc("/api/stream", s.withWorkspace(s.handleStream))

	handler := withRequestLogging(withRecovery(mux), s.lookupSession)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := fs.ReadFile(assetsFS, "index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	stat, err := fs.Stat(assetsFS, "index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	data = applyBaseHref(data, s.baseHref)
	http.ServeContent(w, r, "index.html", stat.ModTime(), bytes.NewReader(data))
}

const streamRetryMillis = 1000

const baseHrefPlaceholder = "<!-- BASE_HREF -->"

func applyBaseHref(data []byte, baseHref string) []byte {
	replacement := ""
	if strings.TrimSpace(baseHref) != "" {
		replacement = fmt.Sprintf(`<base href="%s" />`, html.EscapeString(baseHref))
	}
	return bytes.ReplaceAll(data, []byte(baseHrefPlaceholder), []byte(replacement))
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTabs(w http.ResponseWriter, r *http.Request, workspace schema.WorkspaceID) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithWorkspace(r.Context(), workspace)
	resp, err := s.service.ListTabs(r.Context(), schema.ListTabsRequest{Workspace: workspace})
	if err != nil {
		log.Warn("http tabs list failed", "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Debug("http tabs list ok", "count", len(resp.Tabs))
}

type tabPayload struct {
	TabID string `json:"tab_id"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request, workspace schema.WorkspaceID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithWorkspace(r.Context(), workspace)
	var payload tabPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http activate decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.ActivateTab(r.Context(), schema.ActivateTabRequest{
		Workspace: workspace,
		TabID:     schema.TabID(payload.TabID),
	})
	if err != nil {
		log.Warn("http activate failed", "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http activate ok", "tab", resp.ActiveTab, "changed", resp.Changed)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, workspace schema.WorkspaceID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithWorkspace(r.Context(), workspace)
	var payload tabPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http close decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.CloseTab(r.Context(), schema.CloseTabRequest{
		Workspace: workspace,
		TabID:     schema.TabID(payload.TabID),
	})
	if err != nil {
		log.Warn("http close failed", "tab", payload.TabID, "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http close ok", "tab", resp.Tab.ID, "active", resp.ActiveTab)
}

func (s *Server) handleGetTab(w http.ResponseWriter, r *http.Request, workspace schema.WorkspaceID) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithWorkspace(r.Context(), workspace)
	tabID := schema.TabID(r.URL.Query().Get("tab_id"))
	resp, err := s.service.GetTab(r.Context(), schema.GetTabRequest{Workspace: workspace, TabID: tabID})
	if err != nil {
		log.Debug("http tab get failed", "tab", tabID, "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, workspace schema.WorkspaceID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithWorkspace(r.Context(), workspace)
	var payload struct {
		Fields     string `json:"fields"`
		EntityName string `json:"entity_name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http generate decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.Generate(r.Context(), schema.GenerateRequest{
		Workspace:  workspace,
		Fields:     payload.Fields,
		EntityName: payload.EntityName,
	})
	if err != nil {
		log.Warn("http generate failed", "err", err)
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http generate ok", "tab", resp.Tab.ID, "title", resp.Tab.Title)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, workspace schema.WorkspaceID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithWorkspace(r.Context(), workspace)
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		log.Warn("http upload form failed", "err", err)
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %s: %v", schema.ErrInvalidRequest, uploadFormField, err))
		return
	}
	defer file.Close()
	resp, err := s.service.Upload(r.Context(), schema.UploadRequest{
		Workspace: workspace,
		FileName:  header.Filename,
		Body:      file,
	})
	if err != nil {
		log.Warn("http upload failed", "file", header.Filename, "err", err)
		writeJSON(w, statusForError(err), map[string]any{"error": err.Error(), "result": resp.Result})
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http upload ok", "file", header.Filename, "size", header.Size)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, workspace schema.WorkspaceID) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithWorkspace(r.Context(), workspace)
	if s.health == nil {
		writeError(w, http.StatusServiceUnavailable, schema.ErrBackendUnavailable)
		return
	}
	report, err := s.health.Health(r.Context())
	if err != nil {
		log.Warn("http backend health failed", "base_url", report.BaseURL, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "report": report})
	log.Info("http backend health ok", "base_url", report.BaseURL, "status", report.Status)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, workspace schema.WorkspaceID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.WithWorkspace(r.Context(), workspace)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", streamRetryMillis)

	lastID := parseUint(r.Header.Get("Last-Event-ID"))

	ch, unsubscribe, subscribedAt := s.hub.Subscribe(workspace)
	defer unsubscribe()

	snapshot := s.buildSnapshot(r.Context(), workspace)
	_ = writeSSEvent(w, StreamEvent{
		Type:      streamEventSnapshot,
		Snapshot:  &snapshot,
		ActiveTab: snapshot.ActiveTab,
		Timestamp: time.Now(),
	})
	flusher.Flush()

	// Tab state is covered by the snapshot; only notices are replayed.
	replayCount := 0
	if lastID > 0 {
		for _, event := range s.hub.Replay(workspace, lastID, subscribedAt) {
			if event.Type != streamEventNotice {
				continue
			}
			_ = writeSSEvent(w, event)
			replayCount++
		}
		flusher.Flush()
	}

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "tabs", len(snapshot.Tabs))
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				// Evicted or released; the client reconnects and resyncs.
				log.Info("http stream evicted")
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) buildSnapshot(ctx context.Context, workspace schema.WorkspaceID) SnapshotPayload {
	resp, err := s.service.ListTabs(ctx, schema.ListTabsRequest{Workspace: workspace})
	if err != nil {
		return SnapshotPayload{Tabs: []schema.TabSnapshot{}}
	}
	return SnapshotPayload{Tabs: resp.Tabs, ActiveTab: resp.ActiveTab}
}

// withWorkspace resolves the caller's workspace from the session cookie.
// Requests without a live session read the empty anonymous workspace and
// are never issued a session.
func (s *Server) withWorkspace(next func(http.ResponseWriter, *http.Request, schema.WorkspaceID)) http.HandlerFunc {
	return s.resolveWorkspace(next, false)
}

// withSession is withWorkspace for routes that create state: a caller
// without a live session gets a fresh anonymous one.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, schema.WorkspaceID)) http.HandlerFunc {
	return s.resolveWorkspace(next, true)
}

func (s *Server) resolveWorkspace(next func(http.ResponseWriter, *http.Request, schema.WorkspaceID), issue bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logx.Ctx(r.Context()).With("remote", clientIP(r))
		token := s.sessionToken(r)
		entry, ok := s.sessions.get(token)
		switch {
		case ok:
		case issue:
			fresh, created, err := s.sessions.create()
			if err != nil {
				log.Error("http session issue failed", "err", err)
				writeError(w, http.StatusInternalServerError, errors.New("session unavailable"))
				return
			}
			entry = created
			http.SetCookie(w, &http.Cookie{
				Name:     s.cfg.SessionCookie,
				Value:    fresh,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Expires:  entry.expiresAt,
			})
			w.Header().Set(sessionIssuedHeader, "1")
			log.Debug("http session issued", "reissued", token != "")
		default:
			entry = session{workspace: anonymousWorkspace}
		}
		log = log.With("workspace", entry.workspace)
		if entry.id != "" {
			log = log.With("http_session", entry.id)
		}
		ctx := logx.ContextWithWorkspaceLogger(r.Context(), log, entry.workspace)
		next(w, r.WithContext(ctx), entry.workspace)
	}
}

func (s *Server) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) lookupSession(r *http.Request) (schema.WorkspaceID, string) {
	if s == nil || r == nil {
		return "", ""
	}
	token := s.sessionToken(r)
	if token == "" {
		return "", ""
	}
	entry, ok := s.sessions.get(token)
	if !ok {
		return "", ""
	}
	return entry.workspace, entry.id
}

// statusForError maps service errors onto HTTP status codes.
func statusForError(err error) int {
	var validation *schema.ValidationError
	var transport *schema.TransportError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation),
		errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidWorkspace):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrTabNotFound):
		return http.StatusNotFound
	case errors.As(err, &transport), errors.Is(err, schema.ErrUploadRejected):
		return http.StatusBadGateway
	case errors.Is(err, schema.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
