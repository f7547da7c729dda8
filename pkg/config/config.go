// Package config loads and persists the AI-Scribe settings file.
//
// Settings live in a single YAML document (credentials, EMR URL, folder
// paths, the persisted eform catalog). Secrets may be overridden through
// the environment; a .env file next to the config is honoured.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AutoSentinel is the catalog entry that tells callers to pick a form
// automatically. It is always present and never maps to a real form id.
const AutoSentinel = "Auto"

// Credentials holds the EMR login fields supplied by the operator.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	PIN      string `yaml:"pin"`
}

// LLM holds settings for the note-generation provider.
type LLM struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Config is the full settings document. One instance is loaded at
// startup and treated as the opaque settings object for the rest of the
// process; only the eform catalog is written back.
type Config struct {
	URL              string      `yaml:"url"`
	Credentials      Credentials `yaml:"emr_credentials"`
	DownloadDir      string      `yaml:"download_dir"`
	ReportPath       string      `yaml:"report_path"`
	Headless         bool        `yaml:"headless"`
	WaitSeconds      int         `yaml:"wait_seconds"`
	EformURLTemplate string      `yaml:"eform_url_template"`

	// EformCatalog maps form display names to remote form ids. Rebuilt
	// by a library rescan and persisted so later runs skip the scan.
	EformCatalog map[string]int `yaml:"eform_catalog"`

	// CategoryAliases maps a requested document category to the name
	// patterns that identify it in a record's document index.
	CategoryAliases map[string][]string `yaml:"category_aliases"`

	LLM LLM `yaml:"llm"`

	mu   sync.Mutex
	path string
}

// DefaultEformURLTemplate builds the direct form-creation deep link.
// Substitutions: base URL, form id, demographic number.
const DefaultEformURLTemplate = "%s/eform/efmformadd_data.jsp?fid=%d&demographic_no=%s&appointment=&parentAjaxId=eforms"

// Load reads the YAML settings file at path and applies environment
// overrides. Missing optional fields get defaults; the Auto catalog
// sentinel is always (re)established.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{path: path}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// A .env beside the config may carry secrets kept out of YAML.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	cfg.applyEnv()
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SCRIBE_EMR_USERNAME"); v != "" {
		c.Credentials.Username = v
	}
	if v := os.Getenv("SCRIBE_EMR_PASSWORD"); v != "" {
		c.Credentials.Password = v
	}
	if v := os.Getenv("SCRIBE_EMR_PIN"); v != "" {
		c.Credentials.PIN = v
	}
	if v := os.Getenv("SCRIBE_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("SCRIBE_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Headless = b
		}
	}
}

func (c *Config) applyDefaults() {
	if c.WaitSeconds <= 0 {
		c.WaitSeconds = 10
	}
	if c.DownloadDir == "" {
		c.DownloadDir = filepath.Join(os.TempDir(), "aiscribe-downloads")
	}
	if c.EformURLTemplate == "" {
		c.EformURLTemplate = DefaultEformURLTemplate
	}
	if c.EformCatalog == nil {
		c.EformCatalog = make(map[string]int)
	}
	// The sentinel carries no id; 0 is never a valid remote form id.
	c.EformCatalog[AutoSentinel] = 0
}

// Wait returns the bounded-wait budget for remote UI conditions.
func (c *Config) Wait() time.Duration {
	return time.Duration(c.WaitSeconds) * time.Second
}

// SetEformCatalog replaces the persisted catalog, keeping the Auto
// sentinel, and writes the config back to disk.
func (c *Config) SetEformCatalog(catalog map[string]int) error {
	c.mu.Lock()
	m := make(map[string]int, len(catalog)+1)
	for name, id := range catalog {
		m[name] = id
	}
	m[AutoSentinel] = 0
	c.EformCatalog = m
	c.mu.Unlock()

	return c.Save()
}

// Save writes the settings back to the file they were loaded from.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return fmt.Errorf("config has no backing file")
	}

	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.path, out, 0600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", c.path, err)
	}
	return nil
}

// Path returns the backing file path.
func (c *Config) Path() string { return c.path }
