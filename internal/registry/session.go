// Package registry implements the session relay's central bookkeeping:
// the set of live sessions, their watcher fan-out lists, and the
// bounded per-watcher queues that keep a slow watcher from ever slowing
// the streamer (spec.md §4.5).
package registry

import (
	"sync"
	"time"

	"github.com/doy/teleterm/internal/termbuf"
	"github.com/doy/teleterm/internal/wire"
)

// Session is one live broadcast, owned by the Registry (spec.md §3).
type Session struct {
	ID          string
	DisplayName string
	Title       string
	CreatedAt   time.Time

	mu           sync.RWMutex
	cols, rows   int
	lastActivity time.Time
	buffer       *termbuf.Buffer
	watchers     map[string]*Watcher
}

func newSession(id, displayName, title string, cols, rows int) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		DisplayName:  displayName,
		Title:        title,
		CreatedAt:    now,
		cols:         cols,
		rows:         rows,
		lastActivity: now,
		buffer:       termbuf.New(cols, rows),
		watchers:     make(map[string]*Watcher),
	}
}

// Feed appends streamer output to the session's terminal buffer and
// marks the session active. It does not itself broadcast; callers use
// Registry.Broadcast to fan the same bytes out to watchers.
func (s *Session) Feed(data []byte) {
	s.buffer.Feed(data)
	s.touch()
}

// Resize updates the session's terminal size and buffer geometry.
func (s *Session) Resize(cols, rows int) {
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	s.buffer.Resize(cols, rows)
	s.touch()
}

// Touch marks the session active, used on Heartbeat frames.
func (s *Session) Touch() {
	s.touch()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Size returns the session's current terminal dimensions.
func (s *Session) Size() (cols, rows int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cols, s.rows
}

// IdleSeconds reports how long it has been since the last Feed, Resize,
// or Touch call.
func (s *Session) IdleSeconds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(time.Since(s.lastActivity).Seconds())
}

// WatcherCount reports the number of currently attached watchers.
func (s *Session) WatcherCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

// snapshot builds the wire.SessionInfo advertised in a Sessions frame.
func (s *Session) snapshot() wire.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return wire.SessionInfo{
		ID:           s.ID,
		DisplayName:  s.DisplayName,
		Title:        s.Title,
		Cols:         uint16(s.cols),
		Rows:         uint16(s.rows),
		IdleSeconds:  uint32(time.Since(s.lastActivity).Seconds()),
		WatcherCount: uint32(len(s.watchers)),
	}
}

// attachWatcher registers w against this session and primes it with the
// current Resize + full-redraw TerminalOutput frames, per spec.md §4.5:
// "New watchers attach by first being sent the current Resize ... then a
// synthetic TerminalOutput ... then live frames." The caller must not
// broadcast concurrently with this call finishing its priming write,
// or the priming/live ordering guarantee in spec.md §5 would not hold;
// this method enforces that by holding the session lock, which
// broadcast also takes, for the whole operation.
func (s *Session) attachWatcher(w *Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols, rows := s.cols, s.rows
	contents := s.buffer.ContentsFormatted()
	w.SessionID = s.ID
	s.watchers[w.ID] = w

	resizeBytes, err := wire.Encode(wire.Frame{Kind: wire.KindResize, Resize: &wire.ResizePayload{
		Cols: uint16(cols), Rows: uint16(rows),
	}})
	if err == nil {
		if !w.queue.push(resizeBytes) {
			w.evict()
		}
	}

	outputBytes, err := wire.Encode(wire.Frame{Kind: wire.KindTerminalOutput, TerminalOutput: contents})
	if err == nil {
		if !w.queue.push(outputBytes) {
			w.evict()
		}
	}
}

// detachWatcher removes w from this session's watcher set.
func (s *Session) detachWatcher(watcherID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, watcherID)
}

// broadcast delivers a pre-encoded frame to every attached watcher's
// queue, evicting (SlowConsumer) any whose queue would overflow. It
// never blocks on a watcher's own I/O: pushing onto the queue is the
// full extent of this call's work per watcher.
func (s *Session) broadcast(frameBytes []byte) (evicted []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.watchers {
		if !w.queue.push(frameBytes) {
			w.evict()
			delete(s.watchers, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// watcherIDs returns a snapshot of currently attached watcher ids, used
// when tearing a session down to notify each one.
func (s *Session) watcherIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.watchers))
	for id := range s.watchers {
		ids = append(ids, id)
	}
	return ids
}

func (s *Session) watcher(id string) (*Watcher, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.watchers[id]
	return w, ok
}
