package emr

import (
	"errors"
	"fmt"
	"time"

	"github.com/ORHCDev/AI-Scribe/pkg/logging"
)

// ContextKind names one logical remote-application view.
type ContextKind int

const (
	ContextHome ContextKind = iota
	ContextSearch
	ContextEncounter
	ContextFormLibrary
	ContextViewer
)

func (k ContextKind) String() string {
	switch k {
	case ContextHome:
		return "home"
	case ContextSearch:
		return "search"
	case ContextEncounter:
		return "encounter"
	case ContextFormLibrary:
		return "form-library"
	case ContextViewer:
		return "viewer"
	default:
		return fmt.Sprintf("context(%d)", int(k))
	}
}

// openWait bounds how long Open waits for the opener's click to
// actually produce a new context in the surface.
const openWait = 5 * time.Second

// Registry maps logical context kinds to automation-surface handles.
// Every cross-context interaction funnels through it, so handle
// staleness is detected (and converted to "not open") in exactly one
// place instead of leaking stale-handle errors through call sites.
type Registry struct {
	surface Surface
	log     *logging.Logger
	handles map[ContextKind]Handle
}

// NewRegistry creates a registry over the given surface.
func NewRegistry(surface Surface, log *logging.Logger) *Registry {
	return &Registry{
		surface: surface,
		log:     log,
		handles: make(map[ContextKind]Handle),
	}
}

// Bind records an externally created handle for kind (used for the
// initial Home context the surface starts with).
func (r *Registry) Bind(kind ContextKind, h Handle) {
	r.handles[kind] = h
}

// Handle returns the recorded handle for kind, if any.
func (r *Registry) Handle(kind ContextKind) (Handle, bool) {
	h, ok := r.handles[kind]
	return h, ok
}

// IsOpen reports whether kind's context is still alive. It probes by
// switching to the handle and back, and never returns an error: a
// stale, closed, or absent handle is simply "not open". Stale handles
// are forgotten so the next Open recreates the context.
func (r *Registry) IsOpen(kind ContextKind) bool {
	h, ok := r.handles[kind]
	if !ok || h == "" {
		return false
	}

	prev, err := r.surface.Current()
	if err != nil {
		return false
	}
	if err := r.surface.SwitchTo(h); err != nil {
		r.log.Debugf("%s context handle stale: %v", kind, err)
		delete(r.handles, kind)
		return false
	}
	if prev != h {
		if err := r.surface.SwitchTo(prev); err != nil {
			// Probe target is alive; losing the previous context is
			// the previous context's problem.
			r.log.Debugf("could not restore focus after probing %s: %v", kind, err)
		}
	}
	return true
}

// Open ensures kind's context exists and is active. If the context is
// already open this is a pure switch and opener is not invoked.
// Otherwise opener performs the remote click/navigation that creates
// the context, and the newest handle in the surface is captured as
// kind's handle.
func (r *Registry) Open(kind ContextKind, opener func() error) (Handle, error) {
	if r.IsOpen(kind) {
		h := r.handles[kind]
		if err := r.surface.SwitchTo(h); err != nil {
			delete(r.handles, kind)
			return "", fmt.Errorf("failed to switch to %s context: %w", kind, err)
		}
		return h, nil
	}

	before, err := r.surface.Contexts()
	if err != nil {
		return "", fmt.Errorf("failed to list contexts: %w", err)
	}

	if err := opener(); err != nil {
		return "", fmt.Errorf("failed to open %s context: %w", kind, err)
	}

	h, err := r.waitForNewContext(before)
	if err != nil {
		return "", fmt.Errorf("%s context did not appear: %w", kind, err)
	}

	r.handles[kind] = h
	if err := r.surface.SwitchTo(h); err != nil {
		delete(r.handles, kind)
		return "", fmt.Errorf("failed to switch to new %s context: %w", kind, err)
	}
	r.log.Debugf("opened %s context as %s", kind, h)
	return h, nil
}

// waitForNewContext polls for a handle absent before the opener ran.
// Popup creation is asynchronous on the remote side.
func (r *Registry) waitForNewContext(before []Handle) (Handle, error) {
	known := make(map[Handle]bool, len(before))
	for _, h := range before {
		known[h] = true
	}

	deadline := time.Now().Add(openWait)
	for {
		after, err := r.surface.Contexts()
		if err != nil {
			return "", err
		}
		// Newest handle is last; scan backwards.
		for i := len(after) - 1; i >= 0; i-- {
			if !known[after[i]] {
				return after[i], nil
			}
		}
		if time.Now().After(deadline) {
			return "", errors.New("timed out waiting for new context")
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Close closes kind's context if it is open. Returns false (never an
// error) when the context was not open or could not be closed.
func (r *Registry) Close(kind ContextKind) bool {
	h, ok := r.handles[kind]
	delete(r.handles, kind)
	if !ok || h == "" {
		return false
	}
	if err := r.surface.CloseContext(h); err != nil {
		r.log.Debugf("closing %s context failed: %v", kind, err)
		return false
	}
	return true
}

// Forget drops the recorded handle for kind without touching the
// surface.
func (r *Registry) Forget(kind ContextKind) {
	delete(r.handles, kind)
}

// Clear drops every recorded handle.
func (r *Registry) Clear() {
	r.handles = make(map[ContextKind]Handle)
}
