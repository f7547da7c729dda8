package emr

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/ORHCDev/AI-Scribe/pkg/config"
	"github.com/ORHCDev/AI-Scribe/pkg/extract"
	"github.com/ORHCDev/AI-Scribe/pkg/logging"
)

// State is the controller lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Login form locators, and the certificate interstitial some
// installations present before it.
const (
	locCertDetails  = "#details-button"
	locCertProceed  = "#proceed-link"
	locLoginUser    = "xpath=//*[@id='loginText']/form/input[1]"
	locLoginPass    = "xpath=//*[@id='loginText']/form/input[2]"
	locLoginSubmit  = "xpath=//*[@id='loginText']/form/input[3]"
	locLoginPIN     = "xpath=//*[@id='loginText']/form/input[4]"
)

// certWait bounds the interstitial check; its absence is the normal
// case and must not eat the whole wait budget.
const certWait = 3 * time.Second

// Patient is the current subject of navigation. The row reference is
// only valid while the search context stays open.
type Patient struct {
	FirstName   string
	LastName    string
	ChartNumber string

	row Element
}

// SurfaceFactory creates a fresh automation surface; Restart calls it
// again after tearing the previous one down.
type SurfaceFactory func() (Surface, error)

// Controller owns the automation surface, the authenticated home
// context, and all higher-level operations against the remote workflow
// system. It is strictly sequential: callers must not invoke two
// operations concurrently.
type Controller struct {
	cfg        *config.Config
	log        *logging.Logger
	newSurface SurfaceFactory
	extractor  extract.Extractor

	surface  Surface
	registry *Registry
	state    State

	patient      *Patient
	httpClient   *http.Client
	appointments map[string][]Appointment
}

// NewController builds a controller over the given surface factory and
// extraction pipeline.
func NewController(cfg *config.Config, factory SurfaceFactory, extractor extract.Extractor, log *logging.Logger) *Controller {
	return &Controller{
		cfg:        cfg,
		log:        log,
		newSurface: factory,
		extractor:  extractor,
		state:      StateUninitialized,
	}
}

// NewPlaywrightController is the production constructor: a controller
// backed by a Chromium surface configured from cfg.
func NewPlaywrightController(cfg *config.Config, extractor extract.Extractor, log *logging.Logger) *Controller {
	factory := func() (Surface, error) {
		return NewPlaywrightSurface(SurfaceOptions{
			Headless:         cfg.Headless,
			DownloadDir:      cfg.DownloadDir,
			IgnoreCertErrors: true,
			Timeout:          cfg.Wait(),
		}, log)
	}
	return NewController(cfg, factory, extractor, log)
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.state }

// Patient returns the currently selected patient, or nil.
func (c *Controller) Patient() *Patient { return c.patient }

// Start opens the automation surface, navigates to the application,
// logs in, and captures the home context. Only a surface-creation
// failure (ErrConnection) propagates; a failed login is logged and
// leaves the controller degraded for a later EnsureHome to retry.
func (c *Controller) Start() error {
	c.state = StateStarting

	surface, err := c.newSurface()
	if err != nil {
		c.state = StateUninitialized
		return fmt.Errorf("start failed: %w", err)
	}
	c.surface = surface
	c.registry = NewRegistry(surface, c.log)

	home, err := surface.Current()
	if err != nil {
		c.teardown()
		return fmt.Errorf("start failed: %w", err)
	}
	c.registry.Bind(ContextHome, home)

	if err := surface.Navigate(home, c.cfg.URL); err != nil {
		c.teardown()
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if err := c.login(home); err != nil {
		// Home stays absent; EnsureHome will restart and retry.
		c.log.Errorf("login failed: %v", err)
		c.state = StateDegraded
		return nil
	}

	c.seedHTTPClient()
	c.state = StateReady
	c.log.Infof("EMR session ready")

	// Startup scan; failure only costs the cached schedule.
	if _, err := c.ScanAppointments(); err != nil {
		c.log.Warnf("appointment scan failed: %v", err)
	}
	return nil
}

// login fills the credential form, first bypassing the certificate
// interstitial if one shows up within its short wait.
func (c *Controller) login(home Handle) error {
	if details, err := c.surface.WaitVisible(home, locCertDetails, certWait); err == nil {
		if err := details.Click(); err == nil {
			if proceed, err := c.surface.WaitVisible(home, locCertProceed, certWait); err == nil {
				_ = proceed.Click()
				c.log.Infof("bypassed certificate interstitial")
			}
		}
	}

	user, err := c.surface.WaitVisible(home, locLoginUser, c.cfg.Wait())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}
	pass, err := c.surface.Find(home, locLoginPass)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}
	pin, err := c.surface.Find(home, locLoginPIN)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}

	creds := c.cfg.Credentials
	if err := user.Type(creds.Username); err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}
	if err := pass.Type(creds.Password); err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}
	if err := pin.Type(creds.PIN); err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}

	submit, err := c.surface.Find(home, locLoginSubmit)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}
	if err := submit.Click(); err != nil {
		return fmt.Errorf("%w: %v", ErrLogin, err)
	}
	return nil
}

// seedHTTPClient builds a plain HTTP client whose jar carries the UI
// session's cookies, for out-of-band probes (document type lookups)
// that skip the remote UI.
func (c *Controller) seedHTTPClient() {
	cookies, err := c.surface.Cookies()
	if err != nil {
		c.log.Warnf("could not read session cookies: %v", err)
		return
	}

	base, err := url.Parse(c.cfg.URL)
	if err != nil {
		c.log.Warnf("invalid application URL %q: %v", c.cfg.URL, err)
		return
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		c.log.Warnf("could not create cookie jar: %v", err)
		return
	}
	hc := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		hc = append(hc, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: ck.Path})
	}
	jar.SetCookies(base, hc)

	c.httpClient = &http.Client{
		Jar:     jar,
		Timeout: c.cfg.Wait(),
		Transport: &http.Transport{
			TLSClientConfig: insecureTLSConfig(),
		},
	}
}

// Restart tears the surface down (idempotent if already gone) and runs
// Start again. This is the only transition out of Degraded.
func (c *Controller) Restart() error {
	c.log.Infof("restarting EMR session")
	c.Shutdown()
	return c.Start()
}

// EnsureHome reports whether the authenticated home context is
// reachable, restarting the whole chain if it is not. Every
// state-machine entry point calls this first.
func (c *Controller) EnsureHome() bool {
	if c.state == StateReady && c.registry.IsOpen(ContextHome) {
		return true
	}

	c.state = StateDegraded
	if err := c.Restart(); err != nil {
		c.log.Errorf("restart failed: %v", err)
		return false
	}
	return c.state == StateReady && c.registry.IsOpen(ContextHome)
}

// Shutdown closes the surface and clears all context handles. Safe to
// call multiple times.
func (c *Controller) Shutdown() {
	c.teardown()
	c.state = StateUninitialized
}

// insecureTLSConfig matches the surface's certificate-error bypass for
// the side channel; the target installations run self-signed.
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}

func (c *Controller) teardown() {
	if c.surface != nil {
		if err := c.surface.Close(); err != nil {
			c.log.Warnf("surface close: %v", err)
		}
		c.surface = nil
	}
	if c.registry != nil {
		c.registry.Clear()
	}
	c.patient = nil
	c.httpClient = nil
}
