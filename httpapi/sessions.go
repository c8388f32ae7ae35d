package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"

	"pkt.systems/codeforge/internal/logx"
	"pkt.systems/codeforge/schema"
)

const maxSweepInterval = time.Minute

var tokenSource io.Reader = rand.Reader

// session binds an anonymous browser cookie to a workspace.
type session struct {
	id        string
	workspace schema.WorkspaceID
	expiresAt time.Time
}

type sessionStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time
	items      map[string]session
	// onExpire runs outside the lock for every session that ends. Each
	// session owns its workspace, so this is where the workspace is freed.
	onExpire func(session)
}

func newSessionStore(ttl time.Duration) *sessionStore {
	sweepEvery := ttl
	if sweepEvery > maxSweepInterval {
		sweepEvery = maxSweepInterval
	}
	return &sessionStore{
		ttl:        ttl,
		sweepEvery: sweepEvery,
		lastSweep:  time.Now(),
		items:      make(map[string]session),
	}
}

func (s *sessionStore) create() (string, session, error) {
	token, err := randomToken(32)
	if err != nil {
		return "", session{}, err
	}
	id, err := randomToken(12)
	if err != nil {
		return "", session{}, err
	}
	suffix, err := randomToken(12)
	if err != nil {
		return "", session{}, err
	}
	entry := session{
		id:        id,
		workspace: schema.WorkspaceID("ws-" + suffix),
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Lock()
	s.items[token] = entry
	expired := s.sweepLocked(time.Now(), false)
	s.mu.Unlock()
	s.release(expired, "session expired")
	logx.WithWorkspace(context.Background(), entry.workspace).With("http_session", entry.id).
		Info("session created", "expires", entry.expiresAt.Format(time.RFC3339))
	return token, entry, nil
}

func (s *sessionStore) get(token string) (session, bool) {
	if token == "" {
		return session{}, false
	}
	s.mu.Lock()
	entry, ok := s.items[token]
	if ok && time.Now().After(entry.expiresAt) {
		delete(s.items, token)
		s.mu.Unlock()
		s.release([]session{entry}, "session expired")
		return session{}, false
	}
	s.mu.Unlock()
	return entry, ok
}

func (s *sessionStore) delete(token string) {
	s.mu.Lock()
	entry, ok := s.items[token]
	if ok {
		delete(s.items, token)
	}
	s.mu.Unlock()
	if ok {
		s.release([]session{entry}, "session deleted")
	}
}

// sweep drops every expired session regardless of the sweep interval.
func (s *sessionStore) sweep() int {
	s.mu.Lock()
	expired := s.sweepLocked(time.Now(), true)
	s.mu.Unlock()
	s.release(expired, "session expired")
	return len(expired)
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *sessionStore) sweepLocked(now time.Time, force bool) []session {
	if !force && now.Sub(s.lastSweep) < s.sweepEvery {
		return nil
	}
	s.lastSweep = now
	var expired []session
	for token, entry := range s.items {
		if now.After(entry.expiresAt) {
			delete(s.items, token)
			expired = append(expired, entry)
		}
	}
	return expired
}

func (s *sessionStore) release(ended []session, msg string) {
	for _, entry := range ended {
		logx.WithWorkspace(context.Background(), entry.workspace).With("http_session", entry.id).Info(msg)
		if s.onExpire != nil {
			s.onExpire(entry)
		}
	}
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(tokenSource, buf); err != nil {
		return "", fmt.Errorf("session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
