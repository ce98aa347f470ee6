package indexer

import "sync"

// registry tracks which tickers have an indexing run in flight and the
// latest human-readable progress message for each. In-memory only:
// progress is ephemeral and a restart simply loses it.
type registry struct {
	mu       sync.Mutex
	running  map[string]bool
	progress map[string]string
}

func newRegistry() *registry {
	return &registry{
		running:  make(map[string]bool),
		progress: make(map[string]string),
	}
}

// tryAcquire marks a ticker as running. Returns false when a run is
// already in flight; callers must not queue behind it.
func (r *registry) tryAcquire(ticker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[ticker] {
		return false
	}
	r.running[ticker] = true
	return true
}

// release clears the running flag and the progress message.
func (r *registry) release(ticker string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, ticker)
	delete(r.progress, ticker)
}

func (r *registry) setProgress(ticker, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[ticker] = msg
}

func (r *registry) getProgress(ticker string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress[ticker]
}
