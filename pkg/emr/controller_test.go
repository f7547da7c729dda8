package emr

import (
	"context"
	"testing"

	"github.com/ORHCDev/AI-Scribe/pkg/config"
	"github.com/ORHCDev/AI-Scribe/pkg/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, _ := logging.NewLogger("test")
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		URL:              "https://emr.example.test",
		DownloadDir:      t.TempDir(),
		WaitSeconds:      1,
		EformURLTemplate: config.DefaultEformURLTemplate,
		EformCatalog:     map[string]int{config.AutoSentinel: 0},
		CategoryAliases:  map[string][]string{},
	}
}

// loginContext is a home context carrying the credential form, enough
// for Start to reach the ready state.
func loginContext() *fakeContext {
	ctx := newFakeContext()
	ctx.add(locLoginUser, newFakeElement(""))
	ctx.add(locLoginPass, newFakeElement(""))
	ctx.add(locLoginPIN, newFakeElement(""))
	ctx.add(locLoginSubmit, newFakeElement(""))
	return ctx
}

// fakeExtractor records the paths it was handed and returns canned
// text.
type fakeExtractor struct {
	text  string
	err   error
	paths []string
}

func (f *fakeExtractor) ExtractFile(_ context.Context, path string) (string, error) {
	f.paths = append(f.paths, path)
	return f.text, f.err
}

// newTestController wires a controller over the given surface and
// starts it. The surface must already contain a login context.
func newTestController(t *testing.T, surface *fakeSurface, extractor *fakeExtractor) *Controller {
	t.Helper()
	cfg := testConfig(t)
	c := NewController(cfg, func() (Surface, error) { return surface, nil }, extractor, testLogger(t))
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.State() != StateReady {
		t.Fatalf("controller state after start = %s, want ready", c.State())
	}
	return c
}
