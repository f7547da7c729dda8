package emr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ORHCDev/AI-Scribe/pkg/config"
	"github.com/ORHCDev/AI-Scribe/pkg/report"
)

const (
	// locEformMarker is present on every rendered eform; its arrival
	// means the form is ready for field writes.
	locEformMarker = "xpath=//input[@name='subject']"

	// locEformFreeText is the designated free-text field.
	locEformFreeText = "xpath=//textarea[@name='notes']"

	// eformListingPath is the library listing used for catalog rescans.
	eformListingPath = "/eform/efmformslistadd.jsp"

	// checkboxSentinel marks a checked state on forms that render
	// checkboxes as plain text inputs.
	checkboxSentinel = "checked"
)

var eformLinkIDPattern = regexp.MustCompile(`fid=(\d+)`)

// OpenEformFromSearch opens a new instance of the named form by
// navigating the form library for the current patient. A missing
// library entry is logged and returns false, not an error.
func (c *Controller) OpenEformFromSearch(formName string) (bool, error) {
	if err := c.OpenFormLibrary(); err != nil {
		return false, err
	}
	lib, ok := c.registry.Handle(ContextFormLibrary)
	if !ok {
		return false, fmt.Errorf("%w: form library context gone", ErrContextLost)
	}

	entry, err := c.surface.Find(lib, fmt.Sprintf("xpath=//a[normalize-space(text())='%s']", formName))
	if err != nil {
		c.log.Warnf("form %q not found in library: %v", formName, err)
		return false, nil
	}
	if err := entry.Click(); err != nil {
		c.log.Warnf("form %q could not be opened: %v", formName, err)
		return false, nil
	}
	return true, nil
}

// OpenEformFromLink opens a new instance of the named form through its
// direct deep link, bypassing patient search entirely: only a chart
// number is required. Returns the handle of the popup context.
func (c *Controller) OpenEformFromLink(formName, chartNo string) (Handle, error) {
	if chartNo == "" {
		return "", fmt.Errorf("%w: chart number required", ErrNoPatient)
	}
	formID, ok := c.cfg.EformCatalog[formName]
	if !ok || formID == 0 {
		return "", fmt.Errorf("%w: form %q not in catalog", ErrNotFound, formName)
	}
	if !c.EnsureHome() {
		return "", fmt.Errorf("%w: home context unreachable", ErrConnection)
	}

	link := fmt.Sprintf(c.cfg.EformURLTemplate, strings.TrimRight(c.cfg.URL, "/"), formID, chartNo)
	return c.openPopup(link)
}

// OpenEformFromLinkByName resolves the chart number from the exported
// clinic report, then opens the form via its deep link.
func (c *Controller) OpenEformFromLinkByName(first, last, formName string) (Handle, error) {
	if c.cfg.ReportPath == "" {
		return "", fmt.Errorf("%w: no report path configured", ErrNotFound)
	}
	details, found, err := report.FindDetails(c.cfg.ReportPath, last, first)
	if err != nil {
		return "", fmt.Errorf("report lookup: %w", err)
	}
	if !found {
		return "", fmt.Errorf("%w: %s %s not in report", ErrNotFound, first, last)
	}
	return c.OpenEformFromLink(formName, details.ChartNumber)
}

// openPopup opens url in a new window via the surface's script
// primitive and returns the new context's handle.
func (c *Controller) openPopup(url string) (Handle, error) {
	cur, err := c.surface.Current()
	if err != nil {
		return "", err
	}
	before, err := c.surface.Contexts()
	if err != nil {
		return "", err
	}

	script := fmt.Sprintf("window.open(%q, '_blank', 'width=800,height=600');", url)
	if _, err := c.surface.RunScript(cur, script); err != nil {
		return "", err
	}

	h, err := c.registry.waitForNewContext(before)
	if err != nil {
		return "", fmt.Errorf("popup did not appear: %w", err)
	}
	if err := c.surface.SwitchTo(h); err != nil {
		return "", err
	}
	return h, nil
}

// OpenEformWithFields opens the named form via its deep link, then
// populates the free-text field and ticks the requested checkboxes.
// Individual checkbox failures are logged and skipped; the call still
// succeeds as long as the form itself opened.
func (c *Controller) OpenEformWithFields(formName string, checkboxNames []string, freeText, chartNo string) (bool, error) {
	h, err := c.OpenEformFromLink(formName, chartNo)
	if err != nil {
		return false, err
	}

	if _, err := c.surface.WaitVisible(h, locEformMarker, c.cfg.Wait()); err != nil {
		c.log.Warnf("form %q marker field never appeared, skipping field writes", formName)
		return true, nil
	}

	if freeText != "" {
		if field, err := c.surface.Find(h, locEformFreeText); err == nil {
			if err := field.Fill(freeText); err != nil {
				c.log.Warnf("form %q free-text write failed: %v", formName, err)
			}
		} else {
			c.log.Warnf("form %q has no free-text field: %v", formName, err)
		}
	}

	for _, name := range checkboxNames {
		if err := c.setCheckbox(h, name); err != nil {
			c.log.Warnf("form %q checkbox %q skipped: %v", formName, name, err)
		}
	}
	return true, nil
}

// setCheckbox locates a checkbox by field name (falling back to a
// whitespace-normalized name) and ensures it is checked. Checkboxes
// rendered as text inputs carry a sentinel value instead of a checked
// state; those are forced through the script primitive.
func (c *Controller) setCheckbox(h Handle, name string) error {
	el, fieldName, err := c.findField(h, name)
	if err != nil {
		return err
	}

	typ, _ := el.Attribute("type")
	if typ == "checkbox" {
		checked, _ := el.Attribute("checked")
		if checked != "" {
			return nil
		}
		return el.Click()
	}

	value, _ := el.Attribute("value")
	if value == checkboxSentinel {
		return nil
	}
	script := fmt.Sprintf("document.getElementsByName(%q)[0].value = %q;", fieldName, checkboxSentinel)
	_, err = c.surface.RunScript(h, script)
	return err
}

func (c *Controller) findField(h Handle, name string) (Element, string, error) {
	el, err := c.surface.Find(h, fmt.Sprintf("xpath=//input[@name='%s']", name))
	if err == nil {
		return el, name, nil
	}

	normalized := strings.Join(strings.Fields(name), "")
	if normalized != name {
		if el, err := c.surface.Find(h, fmt.Sprintf("xpath=//input[@name='%s']", normalized)); err == nil {
			return el, normalized, nil
		}
	}
	return nil, "", fmt.Errorf("%w: field %q", ErrNotFound, name)
}

// RescanEformCatalog opens the form library listing, rebuilds the
// display-name -> form-id catalog from its entries, persists it to the
// configuration, and closes the listing context. The Auto sentinel
// always survives the rebuild.
func (c *Controller) RescanEformCatalog() error {
	if !c.EnsureHome() {
		return fmt.Errorf("%w: home context unreachable", ErrConnection)
	}

	listing, err := c.openPopup(strings.TrimRight(c.cfg.URL, "/") + eformListingPath)
	if err != nil {
		return fmt.Errorf("catalog rescan: %w", err)
	}
	defer func() {
		if err := c.surface.CloseContext(listing); err != nil {
			c.log.Debugf("listing context close: %v", err)
		}
	}()

	entries, err := c.surface.FindAll(listing, "xpath=//a[contains(@href,'efmformadd_data.jsp')]")
	if err != nil {
		return fmt.Errorf("catalog rescan: %w", err)
	}

	catalog := make(map[string]int)
	for _, entry := range entries {
		name, err := entry.Text()
		if err != nil {
			continue
		}
		name = strings.TrimSpace(name)
		href, err := entry.Attribute("href")
		if err != nil || name == "" {
			continue
		}
		m := eformLinkIDPattern.FindStringSubmatch(href)
		if m == nil {
			c.log.Warnf("library entry %q has no parseable id, skipped", name)
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		catalog[name] = id
	}

	if err := c.cfg.SetEformCatalog(catalog); err != nil {
		return fmt.Errorf("catalog persist: %w", err)
	}
	c.log.Infof("eform catalog rebuilt: %d entries", len(catalog))
	return nil
}

// Catalog returns the current form catalog including the Auto sentinel.
func (c *Controller) Catalog() map[string]int {
	out := make(map[string]int, len(c.cfg.EformCatalog))
	for name, id := range c.cfg.EformCatalog {
		out[name] = id
	}
	if _, ok := out[config.AutoSentinel]; !ok {
		out[config.AutoSentinel] = 0
	}
	return out
}
