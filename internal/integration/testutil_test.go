package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/codeforge/core"
	"pkt.systems/codeforge/httpapi"
	"pkt.systems/codeforge/internal/codegen"
	"pkt.systems/codeforge/schema"
)

// fakeBackend mimics the code generation backend. The fields value picks
// the response shape.
type fakeBackend struct {
	mu       sync.Mutex
	requests []map[string]string
	uploads  []string
}

const (
	scenarioInterrupt = "interrupt"
	scenarioNDJSON    = "ndjson"
)

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/codegen/generate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.requests = append(b.requests, body)
		b.mu.Unlock()

		flusher := w.(http.Flusher)
		switch body["fields"] {
		case scenarioInterrupt:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, "class Foo {")
			flusher.Flush()
			panic(http.ErrAbortHandler)
		case scenarioNDJSON:
			w.Header().Set("Content-Type", "application/x-ndjson")
			for _, record := range []schema.FragmentRecord{
				{Name: "Foo.java", Type: "java", ContentChunk: "class Foo {"},
				{Name: "pom.xml", Type: "xml", ContentChunk: "<project/>"},
				{Name: "Foo.java", ContentChunk: "}"},
			} {
				line, _ := json.Marshal(record)
				_, _ = w.Write(append(line, '\n'))
				flusher.Flush()
			}
		default:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			for _, chunk := range []string{"public class ", "Entity {", "\n  Long id;", "\n}"} {
				_, _ = io.WriteString(w, chunk)
				flusher.Flush()
			}
		}
	})
	mux.HandleFunc("/api/codegen/uploadToMinIo", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("multipartFile")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		b.mu.Lock()
		b.uploads = append(b.uploads, header.Filename)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "message": "ok"})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "UP"})
	})
	return mux
}

func (b *fakeBackend) lastRequest() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return nil
	}
	return b.requests[len(b.requests)-1]
}

type testServer struct {
	backend *fakeBackend
	service core.Service
	url     string
}

// newTestServer wires the real client, service, hub and HTTP server against
// a fake backend.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	backend := &fakeBackend{}
	backendSrv := httptest.NewServer(backend.handler())
	t.Cleanup(backendSrv.Close)

	client, err := codegen.New(codegen.Config{BaseURL: backendSrv.URL})
	if err != nil {
		t.Fatalf("codegen client: %v", err)
	}
	hub := httpapi.NewHub(0)
	service, err := core.NewService(schema.ServiceConfig{}, core.ServiceDeps{
		Generator: client,
		Uploader:  client,
		EventSink: hub,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = service.CloseAll(ctx)
	})
	httpSrv := httpapi.NewServer(httpapi.Config{}, service, client, hub)
	server := httptest.NewServer(httpSrv.Handler())
	t.Cleanup(server.Close)
	return &testServer{backend: backend, service: service, url: server.URL}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func writeJSON(t *testing.T, client *http.Client, url string, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func readJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode >= 300 {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatal(err)
	}
}

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}
