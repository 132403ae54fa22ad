package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	htmlTagPattern = regexp.MustCompile(`(?is)<\s*(html|body|p|div|span|article|br|script|style|a|h[1-6]|li|table)\b[^>]*>`)
	unsafePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)vbscript:`),
		regexp.MustCompile(`(?i)data:text/html[^\s]*`),
	}
)

// LooksLikeHTML reports whether s contains markup worth parsing
func LooksLikeHTML(s string) bool {
	return htmlTagPattern.MatchString(s)
}

// VisibleText parses HTML and returns its visible text, one block per line
func VisibleText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}
	return extractVisibleText(doc), nil
}

// PageTitle returns the contents of the first <title> element
func PageTitle(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)

	return strings.Join(strings.Fields(title), " ")
}

// Sanitize reduces user input to plain text: markup is replaced by its
// visible text, script-like URLs are removed and whitespace is collapsed
func Sanitize(text string) string {
	if LooksLikeHTML(text) {
		if visible, err := VisibleText(text); err == nil {
			text = visible
		}
	}
	for _, p := range unsafePatterns {
		text = p.ReplaceAllString(text, "")
	}

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// extractVisibleText extracts text nodes from HTML, skipping scripts/styles
func extractVisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "object", "embed", "template", "head":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		// Block elements end a line so sentences never run across them
		if n.Type == html.ElementNode && isBlock(n.Data) {
			buf.WriteString("\n")
		}
	}

	walk(n)
	return strings.TrimSpace(buf.String())
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "br", "tr", "section", "article", "blockquote",
		"h1", "h2", "h3", "h4", "h5", "h6", "header", "footer", "ul", "ol", "table":
		return true
	}
	return false
}

// SplitSentences splits text into sentences of minLen to maxLen bytes
// (simple heuristic). Line breaks always end a sentence.
func SplitSentences(text string, minLen, maxLen int) []string {
	var sentences []string
	keep := func(s string) {
		s = strings.Join(strings.Fields(s), " ")
		if len(s) >= minLen && (maxLen <= 0 || len(s) <= maxLen) {
			sentences = append(sentences, s)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		var current strings.Builder
		for i, r := range line {
			current.WriteRune(r)

			if r == '.' || r == '!' || r == '?' {
				// Split only before whitespace, which skips decimals such as 3.5
				if i+1 < len(line) && (line[i+1] == ' ' || line[i+1] == '\t') {
					if r == '.' && endsWithAbbreviation(current.String()) {
						continue
					}
					keep(current.String())
					current.Reset()
				}
			}
		}
		keep(current.String())
	}

	return sentences
}

var abbreviations = []string{"mr.", "mrs.", "ms.", "dr.", "prof.", "st.", "vs.", "e.g.", "i.e.", "u.s.", "u.k.", "inc.", "ltd.", "jr.", "sr.", "no."}

func endsWithAbbreviation(s string) bool {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return false
	}
	last := fields[len(fields)-1]
	for _, a := range abbreviations {
		if last == a {
			return true
		}
	}
	return false
}
