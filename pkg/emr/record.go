package emr

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Encounter page locators. The forms-history and documents sections
// share one scan routine; only the locators and id patterns differ.
const (
	locEncounterLink   = ".links a"
	locFormLibraryOpen = "xpath=//*[@id='menuTitleeforms']/h3"

	locFormsExpander = "xpath=//*[@id='menuTitleeforms']/h3/span"
	locFormsItems    = "xpath=//*[@id='eformsContent']//a"
	locDocsExpander  = "xpath=//*[@id='menuTitledocs']/h3/span"
	locDocsItems     = "xpath=//*[@id='docsContent']//a"

	// documentTypeProbePath is the out-of-band document metadata page;
	// its response carries the classified type as the selected option.
	documentTypeProbePath = "/dms/ManageDocument.do?method=editDocument&doc_no=%d"
)

var (
	formIDPattern = regexp.MustCompile(`fdid=(\d+)`)
	docIDPattern  = regexp.MustCompile(`segmentID=(\d+)`)

	selectedOptionPattern = regexp.MustCompile(`<option[^>]*\bselected\b[^>]*>([^<]+)</option>`)
)

// RecordIndex maps a display name to its ordered list of external ids,
// newest first. Duplicate display names accumulate additional ids; the
// remote system reuses names across instances.
type RecordIndex struct {
	names []string
	ids   map[string][]int
}

// NewRecordIndex creates an empty index.
func NewRecordIndex() *RecordIndex {
	return &RecordIndex{ids: make(map[string][]int)}
}

// Add appends id under name, preserving first-seen name order.
func (x *RecordIndex) Add(name string, id int) {
	if _, seen := x.ids[name]; !seen {
		x.names = append(x.names, name)
	}
	x.ids[name] = append(x.ids[name], id)
}

// Get returns the ordered ids recorded under name.
func (x *RecordIndex) Get(name string) []int { return x.ids[name] }

// Names returns display names in first-seen (newest-first) order.
func (x *RecordIndex) Names() []string { return x.names }

// Len returns the number of distinct names.
func (x *RecordIndex) Len() int { return len(x.names) }

// Map returns a name -> ids copy for external callers.
func (x *RecordIndex) Map() map[string][]int {
	out := make(map[string][]int, len(x.ids))
	for name, ids := range x.ids {
		out[name] = append([]int(nil), ids...)
	}
	return out
}

// OpenEncounter opens the current patient's record context via their
// search-result row, dismissing the blocking interstitial alert if the
// remote side raises one (its absence is not an error).
func (c *Controller) OpenEncounter() error {
	if c.patient == nil {
		return ErrNoPatient
	}

	h, err := c.registry.Open(ContextEncounter, func() error {
		search, ok := c.registry.Handle(ContextSearch)
		if !ok {
			return fmt.Errorf("%w: search context gone", ErrContextLost)
		}
		if err := c.surface.SwitchTo(search); err != nil {
			return err
		}
		link, err := c.patient.row.Find(locEncounterLink)
		if err != nil {
			return err
		}
		return link.Click()
	})
	if err != nil {
		return err
	}

	if msg, err := c.surface.AcceptDialog(h, c.cfg.Wait()); err == nil {
		c.log.Infof("dismissed encounter alert: %q", msg)
	}
	return nil
}

// OpenFormLibrary opens the eform library context from the encounter
// page, opening the encounter first if needed.
func (c *Controller) OpenFormLibrary() error {
	if !c.registry.IsOpen(ContextEncounter) {
		if err := c.OpenEncounter(); err != nil {
			return err
		}
	}

	_, err := c.registry.Open(ContextFormLibrary, func() error {
		enc, ok := c.registry.Handle(ContextEncounter)
		if !ok {
			return fmt.Errorf("%w: encounter context gone", ErrContextLost)
		}
		if err := c.surface.SwitchTo(enc); err != nil {
			return err
		}
		btn, err := c.surface.Find(enc, locFormLibraryOpen)
		if err != nil {
			return err
		}
		return btn.Click()
	})
	return err
}

func (c *Controller) ensureEncounter() (Handle, error) {
	if !c.registry.IsOpen(ContextEncounter) {
		if err := c.OpenEncounter(); err != nil {
			return "", err
		}
	}
	h, ok := c.registry.Handle(ContextEncounter)
	if !ok {
		return "", fmt.Errorf("%w: encounter context gone", ErrContextLost)
	}
	if err := c.surface.SwitchTo(h); err != nil {
		return "", err
	}
	return h, nil
}

// scanSection expands one encounter sub-section and collects its items
// into a RecordIndex. Items whose action attribute yields no id are
// skipped with a warning, not fatal.
func (c *Controller) scanSection(expanderLoc, itemLoc string, idPattern *regexp.Regexp) (*RecordIndex, error) {
	h, err := c.ensureEncounter()
	if err != nil {
		return nil, err
	}

	// An already-expanded section has no expander to click; both are
	// success.
	if expander, err := c.surface.Find(h, expanderLoc); err == nil {
		if err := expander.Click(); err != nil {
			c.log.Debugf("section expander click failed (likely already expanded): %v", err)
		}
	}

	items, err := c.surface.FindAll(h, itemLoc)
	if err != nil {
		return nil, err
	}

	idx := NewRecordIndex()
	for _, item := range items {
		name, err := item.Text()
		if err != nil {
			c.log.Warnf("unreadable section item skipped: %v", err)
			continue
		}
		name = strings.TrimSpace(name)

		action, err := item.Attribute("onclick")
		if err != nil || action == "" {
			c.log.Warnf("section item %q has no action attribute, skipped", name)
			continue
		}
		m := idPattern.FindStringSubmatch(action)
		if m == nil {
			c.log.Warnf("section item %q has unparseable action %q, skipped", name, action)
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			c.log.Warnf("section item %q id %q not numeric, skipped", name, m[1])
			continue
		}
		idx.Add(name, id)
	}
	return idx, nil
}

// FindForms scans the encounter's forms-history section into an index
// of form name -> instance ids, newest first.
func (c *Controller) FindForms() (*RecordIndex, error) {
	return c.scanSection(locFormsExpander, locFormsItems, formIDPattern)
}

// FindDocuments scans the documents section, then classifies each
// distinct document through the out-of-band type probe, preferring the
// classification over the raw display name when available.
func (c *Controller) FindDocuments() (*RecordIndex, error) {
	raw, err := c.scanSection(locDocsExpander, locDocsItems, docIDPattern)
	if err != nil {
		return nil, err
	}

	types := make(map[int]string)
	idx := NewRecordIndex()
	for _, name := range raw.Names() {
		for _, id := range raw.Get(name) {
			label := name
			if t, ok := types[id]; ok {
				if t != "" {
					label = t
				}
			} else {
				t, found := c.probeDocumentType(id)
				if found {
					label = t
					types[id] = t
				} else {
					types[id] = ""
				}
			}
			idx.Add(label, id)
		}
	}
	return idx, nil
}

// probeDocumentType fetches the document metadata page over the
// cookie-shared HTTP side channel and extracts the selected type
// option. Any failure just means "no classification".
func (c *Controller) probeDocumentType(id int) (string, bool) {
	if c.httpClient == nil {
		return "", false
	}

	url := strings.TrimRight(c.cfg.URL, "/") + fmt.Sprintf(documentTypeProbePath, id)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		c.log.Debugf("document type probe for %d failed: %v", id, err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debugf("document type probe for %d: status %d", id, resp.StatusCode)
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return "", false
	}
	m := selectedOptionPattern.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	t := strings.TrimSpace(string(m[1]))
	return t, t != ""
}
