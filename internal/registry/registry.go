package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/doy/teleterm/internal/wire"
)

// ErrSessionNotFound is returned by operations targeting an unknown
// session id.
var ErrSessionNotFound = fmt.Errorf("registry: session not found")

// Registry is the set of currently active streams, indexed by id and by
// display name (spec.md §4.5). Its own lock protects only the top-level
// maps; per-session state is serialized by the session's own lock, so a
// registry-wide operation never blocks on session-level work.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byName   map[string]*Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byName:   make(map[string]*Session),
	}
}

// Register creates and inserts a new session, returning its freshly
// generated 128-bit random id. Per spec.md §9, a UUID collision is
// treated as a fatal programming error rather than retried, since the
// birthday bound at 128 bits makes a collision astronomically unlikely.
func (r *Registry) Register(displayName, title string, cols, rows int) *Session {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		panic("registry: session id collision on a freshly generated uuid")
	}

	s := newSession(id, displayName, title, cols, rows)
	r.sessions[id] = s
	r.byName[displayName] = s
	return s
}

// Unregister removes a session. Per spec.md §3, this happens only when
// its streamer disconnects; reconnection produces a new session rather
// than reinstating this one.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	if r.byName[s.DisplayName] == s {
		delete(r.byName, s.DisplayName)
	}
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetByDisplayName looks up the (most recently registered) session for a
// display name.
func (r *Registry) GetByDisplayName(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// List returns a snapshot of every live session, sorted by idle time
// ascending (spec.md §4.6: "reply with a Sessions snapshot sorted by
// idle time ascending").
func (r *Registry) List() []wire.SessionInfo {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]wire.SessionInfo, len(sessions))
	for i, s := range sessions {
		infos[i] = s.snapshot()
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].IdleSeconds < infos[j].IdleSeconds
	})
	return infos
}

// AttachWatcher attaches w to the session identified by sessionID,
// sending the priming Resize + TerminalOutput frames described in
// spec.md §4.5.
func (r *Registry) AttachWatcher(sessionID string, w *Watcher) error {
	s, ok := r.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	s.attachWatcher(w)
	return nil
}

// DetachWatcher removes w from the session it is attached to.
func (r *Registry) DetachWatcher(sessionID, watcherID string) {
	s, ok := r.Get(sessionID)
	if !ok {
		return
	}
	s.detachWatcher(watcherID)
}

// Broadcast encodes frame once and delivers it to every watcher attached
// to sessionID, evicting any that overflow their queue. It also feeds
// TerminalOutput frames into the session's own buffer so a later-joining
// watcher's priming snapshot stays in sync, matching the ordering
// invariant in spec.md §5 ("bytes appear at every attached watcher in
// the exact order the streamer sent them").
func (r *Registry) Broadcast(sessionID string, frame wire.Frame) ([]string, error) {
	s, ok := r.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	if frame.Kind == wire.KindTerminalOutput {
		s.Feed(frame.TerminalOutput)
	}

	frameBytes, err := wire.Encode(frame)
	if err != nil {
		return nil, err
	}

	return s.broadcast(frameBytes), nil
}

// Watcher looks up a session's watcher handle by id, for tests and for
// the dispatch loop's teardown path.
func (r *Registry) Watcher(sessionID, watcherID string) (*Watcher, bool) {
	s, ok := r.Get(sessionID)
	if !ok {
		return nil, false
	}
	return s.watcher(watcherID)
}

// TearDownSession removes a session and, if notify is non-nil, delivers
// it (typically a Disconnected frame) to every attached watcher's queue
// before detaching them. It returns the notified watcher ids. Used when
// a streamer disconnects (spec.md §4.6: "unregister the session and send
// Disconnected to its watchers").
func (r *Registry) TearDownSession(sessionID string, notify *wire.Frame) ([]string, error) {
	s, ok := r.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	var notifyBytes []byte
	if notify != nil {
		b, err := wire.Encode(*notify)
		if err != nil {
			return nil, err
		}
		notifyBytes = b
	}

	ids := s.watcherIDs()
	if notifyBytes != nil {
		for _, id := range ids {
			if w, ok := s.watcher(id); ok {
				// Best effort: the session is going away regardless of
				// whether this particular watcher's queue has room.
				if !w.queue.push(notifyBytes) {
					w.evict()
				}
			}
		}
	}

	r.Unregister(sessionID)
	return ids, nil
}
