package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/wricardo/monopoly-live/game/engine"
	"github.com/wricardo/monopoly-live/game/service"
)

func newPersistedSession(t *testing.T) *service.Session {
	t.Helper()
	id := uuid.NewString()
	state := engine.NewGameState(id)
	engine.Join(state, "a", "Alice")
	engine.Join(state, "b", "Bob")
	state.Players[0].Position = 12
	state.Version = 4

	return &service.Session{
		ID:             id,
		State:          state,
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		LastAccessedAt: time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC),
	}
}

func TestFilePersistence_SaveLoad(t *testing.T) {
	fp, err := NewFilePersistence(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilePersistence failed: %v", err)
	}

	sess := newPersistedSession(t)
	if err := fp.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if !fp.Exists(sess.ID) {
		t.Fatal("Expected session file to exist")
	}

	loaded, err := fp.Load(sess.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.ID != sess.ID || !loaded.CreatedAt.Equal(sess.CreatedAt) {
		t.Errorf("Metadata mismatch: %+v", loaded)
	}
	if loaded.State.Status != engine.StatusActive || loaded.State.Version != 4 {
		t.Errorf("State mismatch: status=%s version=%d", loaded.State.Status, loaded.State.Version)
	}
	if len(loaded.State.Players) != 2 || loaded.State.Players[0].Position != 12 {
		t.Errorf("Players mismatch: %+v", loaded.State.Players)
	}
}

func TestFilePersistence_InvalidIDs(t *testing.T) {
	fp, _ := NewFilePersistence(t.TempDir())

	for _, id := range []string{"", "../escape", "abcd"} {
		if _, err := fp.Load(id); !errors.Is(err, ErrInvalidSessionID) {
			t.Errorf("Load(%q): expected ErrInvalidSessionID, got %v", id, err)
		}
		if fp.Exists(id) {
			t.Errorf("Exists(%q) should be false", id)
		}
	}

	sess := newPersistedSession(t)
	sess.ID = "../../etc/passwd"
	if err := fp.Save(sess); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("Save with bad id: expected ErrInvalidSessionID, got %v", err)
	}
}

func TestFilePersistence_ListAndDelete(t *testing.T) {
	dir := t.TempDir()
	fp, _ := NewFilePersistence(dir)

	a := newPersistedSession(t)
	b := newPersistedSession(t)
	fp.Save(a)
	fp.Save(b)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0644)
	os.WriteFile(filepath.Join(dir, "not-a-session.json"), []byte("{}"), 0644)

	ids, err := fp.ListAll()
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 ids, got %v", ids)
	}

	if err := fp.Delete(a.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if fp.Exists(a.ID) {
		t.Error("Deleted session still exists")
	}
	if err := fp.Delete(a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if _, err := fp.Load(a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound on load, got %v", err)
	}
}

func TestManager_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fp, _ := NewFilePersistence(dir)

	manager := NewManager(WithPersistence(fp))
	sess, _ := manager.Create()
	joinPlayers(t, manager, sess.ID, "Alice", "Bob")

	if err := manager.SaveAllSessions(); err != nil {
		t.Fatalf("SaveAllSessions failed: %v", err)
	}

	restored := NewManager(WithPersistence(fp), WithClock(clockwork.NewFakeClock()))
	if err := restored.LoadPersistedSessions(); err != nil {
		t.Fatalf("LoadPersistedSessions failed: %v", err)
	}

	got, err := restored.Get(sess.ID)
	if err != nil {
		t.Fatalf("Restored session missing: %v", err)
	}
	if got.State.Status != engine.StatusActive || len(got.State.Players) != 2 {
		t.Errorf("Unexpected restored state: %+v", got.State)
	}
	for _, p := range got.State.Players {
		if p.Connected {
			t.Errorf("Restored player %s should be disconnected", p.ID)
		}
	}
	if got.State.Version != 2 {
		t.Errorf("Expected version 2, got %d", got.State.Version)
	}

	if err := restored.Delete(sess.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if fp.Exists(sess.ID) {
		t.Error("Delete should remove the persisted snapshot")
	}
}

func TestManager_NoPersistence(t *testing.T) {
	manager := NewManager()
	if err := manager.SaveAllSessions(); err != nil {
		t.Errorf("SaveAllSessions without persistence: %v", err)
	}
	if err := manager.LoadPersistedSessions(); err != nil {
		t.Errorf("LoadPersistedSessions without persistence: %v", err)
	}
}
