// Package session provides the session registry.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unguessable session ID generation (random UUIDs)
//   - A per-session mutation scope with all-or-nothing commits
//   - Session cleanup and expiration
//   - Optional snapshot persistence
//
// Core Types:
//
// Manager is the registry. Each session has its own lock, so mutations on
// one session serialize while different sessions proceed in parallel; the
// registry map itself is guarded by a read-write lock that is held only for
// membership changes and lookups.
//
// Usage:
//
//	manager := session.NewManager()
//
//	sess, err := manager.Create()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	_, err = manager.WithSession(sess.ID, func(state *engine.GameState) error {
//		_, err := engine.Join(state, playerID, "Ada")
//		return err
//	})
//
// Persistence:
//
// With a SessionPersistence configured, SaveAllSessions writes the current
// state of every session and LoadPersistedSessions restores them on start.
// Writes never happen inside a mutation scope.
package session
