package emr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/ORHCDev/AI-Scribe/pkg/extract"
)

const (
	// artifactExt is the extension of files the remote export action
	// deposits in the shared download directory.
	artifactExt = ".pdf"

	locViewerExport = "xpath=//*[@id='printButton']"
)

// removeArtifact deletes a download artifact. Tests substitute it to
// simulate files the filesystem refuses to delete.
var removeArtifact = os.Remove

func docItemLocator(segmentID int) string {
	return fmt.Sprintf("xpath=//*[@id='docsContent']//a[contains(@onclick,'segmentID=%d')]", segmentID)
}

func formItemLocator(formID int) string {
	return fmt.Sprintf("xpath=//*[@id='eformsContent']//a[contains(@onclick,'fdid=%d')]", formID)
}

// snapshotArtifacts lists artifact files currently in the download
// directory and best-effort deletes leftovers from earlier runs. Files
// that resist deletion are returned so they are never misattributed as
// the new artifact.
func (c *Controller) snapshotArtifacts() map[string]bool {
	old := make(map[string]bool)
	entries, err := os.ReadDir(c.cfg.DownloadDir)
	if err != nil {
		c.log.Warnf("could not list download dir: %v", err)
		return old
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), artifactExt) {
			continue
		}
		path := filepath.Join(c.cfg.DownloadDir, entry.Name())
		if err := removeArtifact(path); err != nil {
			c.log.Debugf("leftover artifact %s resisted deletion, excluding from diff", entry.Name())
			old[entry.Name()] = true
		}
	}
	return old
}

// waitForArtifact polls the download directory for an artifact that was
// provably absent before the export was triggered.
func (c *Controller) waitForArtifact(old map[string]bool, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for {
		entries, err := os.ReadDir(c.cfg.DownloadDir)
		if err == nil {
			for _, entry := range entries {
				if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), artifactExt) {
					continue
				}
				if !old[entry.Name()] {
					return filepath.Join(c.cfg.DownloadDir, entry.Name()), true
				}
			}
		}
		if time.Now().After(deadline) {
			return "", false
		}
		time.Sleep(250 * time.Millisecond)
	}
}

// ExtractDocument drives the remote export action for one record
// document and returns its extracted text. A missing artifact is a soft
// failure: the call returns empty text so batch callers keep going.
func (c *Controller) ExtractDocument(ctx context.Context, segmentID int) (string, error) {
	enc, err := c.ensureEncounter()
	if err != nil {
		return "", err
	}

	old := c.snapshotArtifacts()

	item, err := c.surface.Find(enc, docItemLocator(segmentID))
	if err != nil {
		return "", fmt.Errorf("document %d: %w", segmentID, err)
	}

	_, err = c.registry.Open(ContextViewer, item.Click)
	if err != nil {
		return "", fmt.Errorf("document %d viewer: %w", segmentID, err)
	}
	defer func() {
		c.registry.Close(ContextViewer)
		_ = c.surface.SwitchTo(enc)
	}()

	viewer, _ := c.registry.Handle(ContextViewer)
	export, err := c.surface.WaitVisible(viewer, locViewerExport, c.cfg.Wait())
	if err != nil {
		return "", fmt.Errorf("document %d export control: %w", segmentID, err)
	}
	if err := export.Click(); err != nil {
		return "", fmt.Errorf("document %d export: %w", segmentID, err)
	}

	path, ok := c.waitForArtifact(old, c.cfg.Wait())
	if !ok {
		c.log.Warnf("document %d produced no artifact", segmentID)
		return "", nil
	}

	text, err := c.extractor.ExtractFile(ctx, path)
	if removeErr := removeArtifact(path); removeErr != nil {
		c.log.Warnf("could not delete artifact %s: %v", path, removeErr)
	}
	if err != nil {
		c.log.Warnf("extraction of document %d failed: %v", segmentID, err)
		return "", nil
	}
	return text, nil
}

// frameTextScript reads the embedded content frame of an opened form,
// falling back to the page body when the form renders without a frame.
const frameTextScript = `(() => {
	const frame = document.querySelector('iframe');
	if (frame && frame.contentDocument && frame.contentDocument.body) {
		return frame.contentDocument.body.innerHTML;
	}
	return document.body.innerHTML;
})()`

// ReadMostRecentFormByKeyword finds the first form whose name contains
// keyword (case-insensitive), opens its newest instance, and reads its
// text. At most one match is processed. Returns empty text when no form
// matches.
func (c *Controller) ReadMostRecentFormByKeyword(ctx context.Context, keyword string) (string, error) {
	forms, err := c.FindForms()
	if err != nil {
		return "", err
	}

	needle := strings.ToLower(keyword)
	for _, name := range forms.Names() {
		if !strings.Contains(strings.ToLower(name), needle) {
			continue
		}
		ids := forms.Get(name)
		if len(ids) == 0 {
			continue
		}
		return c.readFormInstance(name, ids[0])
	}

	c.log.Infof("no form matching %q", keyword)
	return "", nil
}

func (c *Controller) readFormInstance(name string, formID int) (string, error) {
	enc, err := c.ensureEncounter()
	if err != nil {
		return "", err
	}

	item, err := c.surface.Find(enc, formItemLocator(formID))
	if err != nil {
		return "", fmt.Errorf("form %q (%d): %w", name, formID, err)
	}

	viewer, err := c.registry.Open(ContextViewer, item.Click)
	if err != nil {
		return "", fmt.Errorf("form %q viewer: %w", name, err)
	}
	defer func() {
		c.registry.Close(ContextViewer)
		_ = c.surface.SwitchTo(enc)
	}()

	raw, err := c.surface.RunScript(viewer, frameTextScript)
	if err != nil {
		return "", fmt.Errorf("form %q content: %w", name, err)
	}
	html, _ := raw.(string)

	text, err := extract.HTMLText(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("form %q content: %w", name, err)
	}
	return text, nil
}

// ReadDocumentsByCategory retrieves, for each requested category label,
// the first document whose name matches one of the category's aliases
// (case-insensitive; glob patterns supported), and concatenates the
// results labeled by category in the order the caller requested them.
// Categories with no matching document are skipped with a log line.
func (c *Controller) ReadDocumentsByCategory(ctx context.Context, labels []string) (string, error) {
	docs, err := c.FindDocuments()
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, label := range labels {
		aliases := c.cfg.CategoryAliases[label]
		if len(aliases) == 0 {
			aliases = []string{label}
		}

		id, docName, found := matchCategory(docs, aliases)
		if !found {
			c.log.Infof("no document for category %q", label)
			continue
		}

		text, err := c.ExtractDocument(ctx, id)
		if err != nil {
			c.log.Warnf("category %q (%s): %v", label, docName, err)
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		fmt.Fprintf(&out, "=== %s ===\n%s", label, text)
	}
	return out.String(), nil
}

// matchCategory scans the index in order for the first name matching
// any alias. Aliases without glob metacharacters match as substrings.
func matchCategory(docs *RecordIndex, aliases []string) (int, string, bool) {
	matchers := make([]glob.Glob, 0, len(aliases))
	for _, alias := range aliases {
		pattern := strings.ToLower(alias)
		if !strings.ContainsAny(pattern, "*?[{") {
			pattern = "*" + pattern + "*"
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			continue
		}
		matchers = append(matchers, g)
	}

	for _, name := range docs.Names() {
		lower := strings.ToLower(name)
		for _, g := range matchers {
			if g.Match(lower) {
				ids := docs.Get(name)
				if len(ids) == 0 {
					break
				}
				return ids[0], name, true
			}
		}
	}
	return 0, "", false
}
