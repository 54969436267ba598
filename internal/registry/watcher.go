package registry

// Watcher is a viewing connection's registry-side handle: its identity,
// selected session, and outbound queue. Per spec.md §3, a watcher is in
// exactly one of two states (menu or attached); SessionID is "" while in
// the menu.
type Watcher struct {
	ID          string
	DisplayName string
	Cols        int
	Rows        int

	SessionID string

	queue   *outboundQueue
	evicted chan struct{}
}

// NewWatcher creates a watcher handle with a queue bounded to
// queueCapBytes (0 selects DefaultWatcherQueueBytes).
func NewWatcher(id, displayName string, cols, rows, queueCapBytes int) *Watcher {
	return &Watcher{
		ID:          id,
		DisplayName: displayName,
		Cols:        cols,
		Rows:        rows,
		queue:       newOutboundQueue(queueCapBytes),
		evicted:     make(chan struct{}),
	}
}

// Dequeue is called exclusively by the watcher's own connection-serving
// goroutine (spec.md §5: "per-watcher send queues are owned exclusively
// by their watcher task") to pop the next frame to write to the socket.
func (w *Watcher) Dequeue() ([]byte, bool) {
	return w.queue.pop()
}

// Notify returns the channel signaled whenever a frame is pushed (or the
// queue is closed), for a writer goroutine blocked waiting for work.
func (w *Watcher) Notify() <-chan struct{} {
	return w.queue.notify
}

// Evicted returns a channel closed when this watcher was disconnected
// for being a SlowConsumer (spec.md §4.5). A connection-serving goroutine
// should select on this alongside socket I/O to know to tear down.
func (w *Watcher) Evicted() <-chan struct{} {
	return w.evicted
}

func (w *Watcher) evict() {
	select {
	case <-w.evicted:
	default:
		close(w.evicted)
	}
}

// Close closes the watcher's outbound queue, used when it disconnects
// normally (not via eviction).
func (w *Watcher) Close() {
	w.queue.close()
}

// PendingBytes reports the watcher's current queue depth, for tests.
func (w *Watcher) PendingBytes() int {
	return w.queue.pending()
}
