package relay

import (
	"sync"
	"time"
)

// Handle is the caller's grip on a running session: a stop signal plus a
// join point. The caller side never touches GPU or engine state directly.
type Handle struct {
	stop chan struct{} // closed to request drain
	done chan struct{} // closed when the worker has fully exited

	stopOnce sync.Once

	mu     sync.Mutex
	status Status
}

func newHandle(opts *Options) *Handle {
	return &Handle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
		status: Status{
			State:       StateIdle,
			Source:      opts.Source,
			ServiceName: opts.ServiceName,
			Width:       opts.InitialWidth,
			Height:      opts.InitialHeight,
			StartedAt:   time.Now(),
		},
	}
}

// Stop requests drain and blocks until the worker has exited. After Stop
// returns, no further GPU or engine access happens, so the caller may free
// the borrowed engine. Safe to call from multiple goroutines; every call
// joins.
func (h *Handle) Stop() {
	h.signalStop()
	<-h.done
}

// StopAsync requests drain without joining. Do not free the borrowed engine
// until Done is closed.
func (h *Handle) StopAsync() {
	h.signalStop()
}

func (h *Handle) signalStop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Done is closed once the worker has fully exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Status returns a snapshot of the session state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// State returns just the lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status.State
}

func (h *Handle) stopRequested() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.status.State = s
	h.mu.Unlock()
}

func (h *Handle) setSize(w, hgt int) {
	h.mu.Lock()
	h.status.Width = w
	h.status.Height = hgt
	h.mu.Unlock()
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	h.status.Err = err
	h.mu.Unlock()
}

func (h *Handle) recordTick(published uint64, consecutiveFailures int) {
	h.mu.Lock()
	h.status.FramesPublished = published
	h.status.ConsecutiveFailures = consecutiveFailures
	h.mu.Unlock()
}
