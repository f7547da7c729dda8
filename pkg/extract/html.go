package extract

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// skippedElements carry no visible text worth keeping.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"template": true,
}

// blockElements get a line break so table rows and paragraphs in a
// letter panel stay apart in the flattened text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "li": true,
	"table": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "section": true, "article": true,
}

// HTMLText flattens an HTML fragment into readable plain text. Used for
// remote letter panels that are read in-browser rather than exported.
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	walkText(doc, &out)

	// Collapse the blank runs the walk leaves behind.
	lines := strings.Split(out.String(), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return strings.Join(cleaned, "\n"), nil
}

func walkText(n *html.Node, out *strings.Builder) {
	if n.Type == html.ElementNode && skippedElements[strings.ToLower(n.Data)] {
		return
	}
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if out.Len() > 0 {
				out.WriteString(" ")
			}
			out.WriteString(text)
		}
		return
	}
	if n.Type == html.ElementNode && blockElements[strings.ToLower(n.Data)] {
		out.WriteString("\n")
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walkText(child, out)
	}
	if n.Type == html.ElementNode && blockElements[strings.ToLower(n.Data)] {
		out.WriteString("\n")
	}
}
