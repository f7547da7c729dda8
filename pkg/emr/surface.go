// Package emr drives a browser-hosted clinical records application
// through a scriptable automation surface. It owns the session and
// window-state controller: a registry of open remote contexts, login
// and recovery, patient search, record scanning, document retrieval
// through the shared download directory, and eform creation.
package emr

import "time"

// Handle identifies one top-level context (window/tab) in the
// automation surface. Handles are opaque and may go stale at any time
// when the remote side closes a window.
type Handle string

// Cookie is one browser cookie, exposed so the controller can seed a
// plain HTTP client that shares the authenticated UI session.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Element is a reference to a located page element. References are only
// valid while the context they were found in stays open.
type Element interface {
	Text() (string, error)
	Attribute(name string) (string, error)
	Click() error
	Type(text string) error
	Fill(value string) error
	SelectOption(value string) error
	Find(locator string) (Element, error)
	FindAll(locator string) ([]Element, error)
}

// Surface is the abstract capability set the controller consumes from a
// UI-automation driver. The production implementation wraps Playwright;
// tests substitute a scripted fake.
//
// Locators use the driver's selector syntax; the controller passes CSS
// selectors and "xpath=..." expressions.
type Surface interface {
	// Navigate loads url in the given context.
	Navigate(h Handle, url string) error

	// Current returns the active context handle.
	Current() (Handle, error)

	// Contexts returns all open context handles in creation order;
	// the newest context is last.
	Contexts() ([]Handle, error)

	// SwitchTo makes h the active context. Errors if h is closed or
	// unknown.
	SwitchTo(h Handle) error

	// CloseContext closes h. If h was active, the surface switches to
	// the last remaining context.
	CloseContext(h Handle) error

	// Find locates the first element matching locator in context h.
	// Returns ErrNotFound (wrapped) when nothing matches.
	Find(h Handle, locator string) (Element, error)

	// FindAll locates every element matching locator in context h.
	FindAll(h Handle, locator string) ([]Element, error)

	// WaitVisible waits up to timeout for a matching visible element.
	WaitVisible(h Handle, locator string, timeout time.Duration) (Element, error)

	// AcceptDialog accepts a blocking dialog (alert/confirm) raised in
	// context h, waiting up to timeout for one to appear. Returns the
	// dialog text, or ErrNotFound if none appeared.
	AcceptDialog(h Handle, timeout time.Duration) (string, error)

	// RunScript evaluates JavaScript in context h. Used only for popup
	// construction and for forcing field values typing cannot reach.
	RunScript(h Handle, script string) (interface{}, error)

	// Cookies returns the session's current cookies.
	Cookies() ([]Cookie, error)

	// Close tears the surface down. Safe to call multiple times.
	Close() error
}
