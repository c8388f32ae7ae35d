package httpapi

import (
	"testing"
	"time"

	"pkt.systems/codeforge/schema"
)

func TestSessionStoreCreateGetDelete(t *testing.T) {
	store := newSessionStore(time.Hour)
	token, sess, err := store.create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	if err := schema.ValidateWorkspaceID(sess.workspace); err != nil {
		t.Fatalf("expected valid workspace id %q: %v", sess.workspace, err)
	}
	got, ok := store.get(token)
	if !ok || got.workspace != sess.workspace {
		t.Fatalf("expected session to be found")
	}
	store.delete(token)
	if _, ok := store.get(token); ok {
		t.Fatalf("expected session to be deleted")
	}
}

func TestSessionStoreDistinctWorkspaces(t *testing.T) {
	store := newSessionStore(time.Hour)
	_, a, err := store.create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, b, err := store.create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.workspace == b.workspace {
		t.Fatalf("expected distinct workspaces, got %q twice", a.workspace)
	}
}

func TestSessionStoreExpiration(t *testing.T) {
	store := newSessionStore(5 * time.Millisecond)
	var released []schema.WorkspaceID
	store.onExpire = func(entry session) { released = append(released, entry.workspace) }
	token, sess, err := store.create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := store.get(token); ok {
		t.Fatalf("expected session to expire")
	}
	if len(released) != 1 || released[0] != sess.workspace {
		t.Fatalf("expected expired workspace to be released, got %v", released)
	}
}

func TestSessionStoreCreateSweepsExpired(t *testing.T) {
	store := newSessionStore(5 * time.Millisecond)
	released := 0
	store.onExpire = func(session) { released++ }
	for i := 0; i < 5; i++ {
		if _, _, err := store.create(); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	time.Sleep(20 * time.Millisecond)
	if _, _, err := store.create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := store.count(); got != 1 {
		t.Fatalf("expected only the fresh session to remain, got %d", got)
	}
	if released != 5 {
		t.Fatalf("expected 5 released workspaces, got %d", released)
	}
}

func TestSessionStoreSweepKeepsLiveSessions(t *testing.T) {
	store := newSessionStore(time.Hour)
	token, _, err := store.create()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := store.sweep(); n != 0 {
		t.Fatalf("expected nothing to sweep, got %d", n)
	}
	if _, ok := store.get(token); !ok {
		t.Fatalf("expected live session to survive the sweep")
	}
}

func TestSessionStoreCreateFailsWithoutEntropy(t *testing.T) {
	restore := tokenSource
	tokenSource = failingReader{}
	t.Cleanup(func() { tokenSource = restore })
	store := newSessionStore(time.Hour)
	if _, _, err := store.create(); err == nil {
		t.Fatalf("expected create to fail")
	}
	if got := store.count(); got != 0 {
		t.Fatalf("expected no stored session, got %d", got)
	}
	if _, ok := store.get(""); ok {
		t.Fatalf("expected empty token to never resolve")
	}
}
