// Package extract turns downloaded record artifacts into text. PDF
// artifacts are read through their content streams; scanned documents
// with no text layer fall back to a vision-model OCR pass. Letter-style
// panels read in-browser go through the HTML walker instead.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ORHCDev/AI-Scribe/pkg/logging"
)

// Extractor converts one downloaded artifact into text.
type Extractor interface {
	ExtractFile(ctx context.Context, path string) (string, error)
}

// maxOCRPages bounds how many page images the OCR fallback sends out.
const maxOCRPages = 5

// PDFExtractor extracts text from PDF artifacts, optionally falling
// back to vision OCR for scanned pages.
type PDFExtractor struct {
	ocr *VisionOCR
	log *logging.Logger
}

// NewPDFExtractor creates an extractor. ocr may be nil, in which case
// scanned PDFs yield empty text.
func NewPDFExtractor(ocr *VisionOCR, log *logging.Logger) *PDFExtractor {
	return &PDFExtractor{ocr: ocr, log: log}
}

// ExtractFile returns the text of the PDF at path. A PDF without a text
// layer goes through the OCR fallback when one is configured.
func (e *PDFExtractor) ExtractFile(ctx context.Context, path string) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	tmp, err := os.MkdirTemp("", "scribe-extract-*")
	if err != nil {
		return "", fmt.Errorf("extract workspace: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := api.ExtractContentFile(path, tmp, nil, conf); err != nil {
		return "", fmt.Errorf("content extraction of %s: %w", filepath.Base(path), err)
	}

	text, err := collectContentText(tmp)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	if e.ocr == nil {
		e.log.Warnf("%s has no text layer and OCR is not configured", filepath.Base(path))
		return "", nil
	}
	return e.ocrPages(ctx, path, conf)
}

// collectContentText reads the per-page content dumps in page order and
// pulls the text-showing operators out of them.
func collectContentText(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading extract workspace: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return pageNumber(names[i]) < pageNumber(names[j])
	})

	var out strings.Builder
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		page := contentStreamText(string(raw))
		if page == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(page)
	}
	return out.String(), nil
}

var pageNumPattern = regexp.MustCompile(`_(\d+)\.\w+$`)

func pageNumber(name string) int {
	m := pageNumPattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

var (
	// Tj shows one string; TJ shows an array of strings with kerning.
	tjPattern = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)\s*Tj`)
	tjArrayPattern = regexp.MustCompile(`\[((?:[^\[\]\\]|\\.)*)\]\s*TJ`)
	tjArrayString  = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)
	textLinePattern = regexp.MustCompile(`T\*|Td|TD`)
)

// contentStreamText scrapes the text-showing operators out of a PDF
// content stream. Line-positioning operators become newlines; kerning
// inside TJ arrays is ignored.
func contentStreamText(stream string) string {
	var out strings.Builder
	for _, line := range strings.Split(stream, "\n") {
		wrote := false
		for _, m := range tjPattern.FindAllStringSubmatch(line, -1) {
			out.WriteString(decodePDFString(m[1]))
			wrote = true
		}
		for _, arr := range tjArrayPattern.FindAllStringSubmatch(line, -1) {
			for _, m := range tjArrayString.FindAllStringSubmatch(arr[1], -1) {
				out.WriteString(decodePDFString(m[1]))
				wrote = true
			}
		}
		if wrote || textLinePattern.MatchString(line) {
			out.WriteString("\n")
		}
	}
	return strings.TrimSpace(out.String())
}

// decodePDFString resolves the escape sequences of a literal PDF
// string.
func decodePDFString(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out.WriteByte('\n')
		case 'r':
			out.WriteByte('\r')
		case 't':
			out.WriteByte('\t')
		case '(', ')', '\\':
			out.WriteByte(s[i])
		case '0', '1', '2', '3', '4', '5', '6', '7':
			// Up to three octal digits.
			end := i
			for end < len(s) && end-i < 3 && s[end] >= '0' && s[end] <= '7' {
				end++
			}
			if v, err := strconv.ParseUint(s[i:end], 8, 8); err == nil {
				out.WriteByte(byte(v))
			}
			i = end - 1
		default:
			out.WriteByte(s[i])
		}
	}
	return out.String()
}

// ocrPages extracts the embedded page images of a scanned PDF and runs
// each through the vision OCR, in page order.
func (e *PDFExtractor) ocrPages(ctx context.Context, path string, conf *model.Configuration) (string, error) {
	tmp, err := os.MkdirTemp("", "scribe-ocr-*")
	if err != nil {
		return "", fmt.Errorf("ocr workspace: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := api.ExtractImagesFile(path, tmp, nil, conf); err != nil {
		return "", fmt.Errorf("image extraction of %s: %w", filepath.Base(path), err)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		return "", fmt.Errorf("reading ocr workspace: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if len(names) > maxOCRPages {
		e.log.Warnf("%s: OCR limited to first %d of %d page images", filepath.Base(path), maxOCRPages, len(names))
		names = names[:maxOCRPages]
	}

	var out strings.Builder
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(tmp, name))
		if err != nil {
			continue
		}
		text, err := e.ocr.RecognizeImage(ctx, data, mimeFor(name))
		if err != nil {
			e.log.Warnf("OCR of %s page %s failed: %v", filepath.Base(path), name, err)
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

func mimeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "image/png"
	}
}
