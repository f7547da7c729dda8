package emr

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/ORHCDev/AI-Scribe/pkg/logging"
)

// SurfaceOptions configures the production automation surface.
type SurfaceOptions struct {
	// Headless controls whether the browser runs without a window.
	Headless bool

	// DownloadDir is the shared directory the remote application's
	// export action deposits artifacts into.
	DownloadDir string

	// IgnoreCertErrors bypasses TLS certificate validation; the EMR
	// installations this targets run on self-signed certificates.
	IgnoreCertErrors bool

	// Timeout is the default bound for element waits (0 means 10s).
	Timeout time.Duration
}

// PlaywrightSurface implements Surface on a Chromium browser driven by
// Playwright. Every page (top-level window/tab) is tracked under a
// stable opaque handle; pages opened by the remote application via
// popups are adopted automatically.
type PlaywrightSurface struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	log     *logging.Logger

	mu     sync.Mutex
	pages  map[Handle]playwright.Page
	order  []Handle
	active Handle
	closed bool

	dialogs     map[Handle]chan string
	downloadDir string
	timeout     time.Duration
}

// NewPlaywrightSurface installs and starts Playwright, launches a
// Chromium browser, and opens the initial context. Returns a wrapped
// ErrConnection if the surface cannot be created.
func NewPlaywrightSurface(opts SurfaceOptions, log *logging.Logger) (*PlaywrightSurface, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if err := os.MkdirAll(opts.DownloadDir, 0750); err != nil {
		return nil, fmt.Errorf("%w: failed to create download dir: %v", ErrConnection, err)
	}

	// Discard driver output so it cannot interleave with the caller's.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("%w: failed to install playwright: %v", ErrConnection, err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start playwright: %v", ErrConnection, err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: failed to launch browser: %v", ErrConnection, err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(opts.IgnoreCertErrors),
		AcceptDownloads:   playwright.Bool(true),
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: failed to create browser context: %v", ErrConnection, err)
	}

	s := &PlaywrightSurface{
		pw:          pw,
		browser:     browser,
		context:     context,
		log:         log,
		pages:       make(map[Handle]playwright.Page),
		dialogs:     make(map[Handle]chan string),
		downloadDir: opts.DownloadDir,
		timeout:     opts.Timeout,
	}

	// Pages the remote application pops open arrive through the
	// context, not through any call of ours.
	context.OnPage(func(page playwright.Page) {
		s.adopt(page)
	})

	page, err := context.NewPage()
	if err != nil {
		_ = context.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("%w: failed to open initial page: %v", ErrConnection, err)
	}
	s.mu.Lock()
	if _, tracked := s.pageHandleLocked(page); !tracked {
		s.adoptLocked(page)
	}
	s.active = s.order[0]
	s.mu.Unlock()

	return s, nil
}

// adopt registers a page under a fresh handle and wires its events.
func (s *PlaywrightSurface) adopt(page playwright.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, tracked := s.pageHandleLocked(page); tracked {
		return
	}
	s.adoptLocked(page)
}

func (s *PlaywrightSurface) adoptLocked(page playwright.Page) Handle {
	h := Handle(uuid.New().String())
	s.pages[h] = page
	s.order = append(s.order, h)

	seen := make(chan string, 4)
	s.dialogs[h] = seen

	page.OnDialog(func(d playwright.Dialog) {
		// Unhandled dialogs block the remote page; always accept.
		msg := d.Message()
		if err := d.Accept(); err != nil {
			s.log.Warnf("failed to accept dialog %q: %v", msg, err)
		}
		select {
		case seen <- msg:
		default:
		}
	})

	page.OnDownload(func(d playwright.Download) {
		dest := filepath.Join(s.downloadDir, d.SuggestedFilename())
		if err := d.SaveAs(dest); err != nil {
			s.log.Errorf("failed to save download %s: %v", d.SuggestedFilename(), err)
			return
		}
		s.log.Debugf("saved download artifact %s", dest)
	})

	page.OnClose(func(p playwright.Page) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.forgetLocked(h)
	})

	return h
}

func (s *PlaywrightSurface) pageHandleLocked(page playwright.Page) (Handle, bool) {
	for h, p := range s.pages {
		if p == page {
			return h, true
		}
	}
	return "", false
}

func (s *PlaywrightSurface) forgetLocked(h Handle) {
	delete(s.pages, h)
	delete(s.dialogs, h)
	for i, other := range s.order {
		if other == h {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.active == h && len(s.order) > 0 {
		s.active = s.order[len(s.order)-1]
	}
}

func (s *PlaywrightSurface) page(h Handle) (playwright.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.pages[h]
	if !ok || page.IsClosed() {
		return nil, fmt.Errorf("%w: handle %s", ErrContextLost, h)
	}
	return page, nil
}

// Navigate loads url in context h.
func (s *PlaywrightSurface) Navigate(h Handle, url string) error {
	page, err := s.page(h)
	if err != nil {
		return err
	}
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	}); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Current returns the active context handle.
func (s *PlaywrightSurface) Current() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return "", fmt.Errorf("%w: no active context", ErrContextLost)
	}
	return s.active, nil
}

// Contexts returns open handles in creation order, newest last.
func (s *PlaywrightSurface) Contexts() ([]Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Handle, len(s.order))
	copy(out, s.order)
	return out, nil
}

// SwitchTo makes h the active context and brings it to the front.
func (s *PlaywrightSurface) SwitchTo(h Handle) error {
	page, err := s.page(h)
	if err != nil {
		return err
	}
	if err := page.BringToFront(); err != nil {
		return fmt.Errorf("%w: %v", ErrContextLost, err)
	}
	s.mu.Lock()
	s.active = h
	s.mu.Unlock()
	return nil
}

// CloseContext closes h; the active context falls back to the last
// remaining one.
func (s *PlaywrightSurface) CloseContext(h Handle) error {
	page, err := s.page(h)
	if err != nil {
		return err
	}
	if err := page.Close(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	s.mu.Lock()
	s.forgetLocked(h)
	s.mu.Unlock()
	return nil
}

// Find locates the first element matching locator in context h.
func (s *PlaywrightSurface) Find(h Handle, locator string) (Element, error) {
	page, err := s.page(h)
	if err != nil {
		return nil, err
	}
	el, err := page.QuerySelector(locator)
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", locator, err)
	}
	if el == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
	}
	return &playwrightElement{el: el}, nil
}

// FindAll locates all elements matching locator in context h.
func (s *PlaywrightSurface) FindAll(h Handle, locator string) ([]Element, error) {
	page, err := s.page(h)
	if err != nil {
		return nil, err
	}
	els, err := page.QuerySelectorAll(locator)
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", locator, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &playwrightElement{el: el})
	}
	return out, nil
}

// WaitVisible waits up to timeout for a visible element.
func (s *PlaywrightSurface) WaitVisible(h Handle, locator string, timeout time.Duration) (Element, error) {
	page, err := s.page(h)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = s.timeout
	}
	el, err := page.WaitForSelector(locator, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s did not appear: %v", ErrNotFound, locator, err)
	}
	return &playwrightElement{el: el}, nil
}

// AcceptDialog reports the next dialog raised in context h. Dialogs are
// accepted as they arrive; this waits up to timeout for one.
func (s *PlaywrightSurface) AcceptDialog(h Handle, timeout time.Duration) (string, error) {
	s.mu.Lock()
	seen, ok := s.dialogs[h]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: handle %s", ErrContextLost, h)
	}
	select {
	case msg := <-seen:
		return msg, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("%w: no dialog within %s", ErrNotFound, timeout)
	}
}

// RunScript evaluates JavaScript in context h.
func (s *PlaywrightSurface) RunScript(h Handle, script string) (interface{}, error) {
	page, err := s.page(h)
	if err != nil {
		return nil, err
	}
	result, err := page.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("script evaluation failed: %w", err)
	}
	return result, nil
}

// Cookies returns the browser context's current cookies.
func (s *PlaywrightSurface) Cookies() ([]Cookie, error) {
	cookies, err := s.context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	return out, nil
}

// Close tears down the browser and the Playwright driver. Idempotent.
func (s *PlaywrightSurface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.pages = make(map[Handle]playwright.Page)
	s.dialogs = make(map[Handle]chan string)
	s.order = nil
	s.active = ""
	s.mu.Unlock()

	_ = s.context.Close()
	_ = s.browser.Close()
	if err := s.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

// playwrightElement adapts a Playwright element handle to Element.
type playwrightElement struct {
	el playwright.ElementHandle
}

func (e *playwrightElement) Text() (string, error) {
	text, err := e.el.TextContent()
	if err != nil {
		return "", fmt.Errorf("text read failed: %w", err)
	}
	return text, nil
}

func (e *playwrightElement) Attribute(name string) (string, error) {
	val, err := e.el.GetAttribute(name)
	if err != nil {
		return "", fmt.Errorf("attribute %q read failed: %w", name, err)
	}
	return val, nil
}

func (e *playwrightElement) Click() error {
	if err := e.el.Click(); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) Type(text string) error {
	if err := e.el.Type(text); err != nil {
		return fmt.Errorf("type failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) Fill(value string) error {
	if err := e.el.Fill(value); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) SelectOption(value string) error {
	if _, err := e.el.SelectOption(playwright.SelectOptionValues{
		Values: &[]string{value},
	}); err != nil {
		return fmt.Errorf("select %q failed: %w", value, err)
	}
	return nil
}

func (e *playwrightElement) Find(locator string) (Element, error) {
	el, err := e.el.QuerySelector(locator)
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", locator, err)
	}
	if el == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
	}
	return &playwrightElement{el: el}, nil
}

func (e *playwrightElement) FindAll(locator string) ([]Element, error) {
	els, err := e.el.QuerySelectorAll(locator)
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", locator, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &playwrightElement{el: el})
	}
	return out, nil
}
