// Package source turns raw input into the plain prose the pipeline consumes.
// It detects the input format, strips YAML frontmatter, reduces HTML pages to
// their readable article content, and normalizes whitespace so that paragraph
// boundaries are stable span boundaries downstream.
package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Format identifies a detected input format.
type Format string

const (
	FormatPlain    Format = "plain"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

var (
	excessiveLinesRe = regexp.MustCompile(`\n{3,}`)
	markdownHintRe   = regexp.MustCompile(`(?m)^(#{1,6} |[-*] |\d+\. |> |` + "```" + `)`)
	htmlTagRe        = regexp.MustCompile(`(?is)<(!doctype|html|head|body|div|p|article|main)\b`)
)

// Document is the normalized result.
type Document struct {
	// Title comes from the HTML <title>, readability extraction, or the
	// first markdown heading. Empty when no title is present.
	Title string

	// Text is plain prose with paragraphs separated by exactly one blank
	// line, ready for span splitting.
	Text string

	// Format is the detected input format.
	Format Format

	// Frontmatter holds parsed YAML frontmatter when the input carried it.
	Frontmatter map[string]any
}

// Normalizer converts raw input into normalized documents. Zero-value is not
// usable; construct with NewNormalizer.
type Normalizer struct {
	converter *md.Converter
}

// NewNormalizer builds a normalizer with GitHub-flavored markdown conversion
// for HTML input.
func NewNormalizer() *Normalizer {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Normalizer{converter: converter}
}

// Normalize detects the format of content and reduces it to plain prose.
// pageURL, when non-empty, resolves relative links during HTML extraction and
// may be empty for local input.
func (n *Normalizer) Normalize(content []byte, pageURL string) (*Document, error) {
	format := DetectFormat(content)

	switch format {
	case FormatHTML:
		return n.normalizeHTML(content, pageURL)
	case FormatMarkdown:
		return normalizeMarkdown(string(content))
	default:
		return &Document{
			Text:   normalizeWhitespace(string(content)),
			Format: FormatPlain,
		}, nil
	}
}

// DetectFormat classifies raw content as HTML, markdown, or plain text.
// HTML wins when structural tags are present; markdown when common block
// syntax appears; everything else is plain.
func DetectFormat(content []byte) Format {
	head := content
	if len(head) > 2048 {
		head = head[:2048]
	}
	if htmlTagRe.Match(head) {
		return FormatHTML
	}
	if markdownHintRe.Match(content) || strings.HasPrefix(string(content), "---\n") {
		return FormatMarkdown
	}
	return FormatPlain
}

// normalizeHTML extracts the readable article from a page, then converts the
// remaining HTML to markdown-flavored prose.
func (n *Normalizer) normalizeHTML(content []byte, pageURL string) (*Document, error) {
	var base *url.URL
	if pageURL != "" {
		parsed, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("invalid page URL: %w", err)
		}
		base = parsed
	}

	article, err := readability.FromReader(strings.NewReader(string(content)), base)
	if err != nil {
		return nil, fmt.Errorf("readability extraction: %w", err)
	}

	body := article.Content
	if strings.TrimSpace(body) == "" {
		body = string(content)
	}

	markdown, err := n.converter.ConvertString(body)
	if err != nil {
		return nil, fmt.Errorf("html conversion: %w", err)
	}

	title := article.Title
	if title == "" {
		title = extractHTMLTitle(content)
	}

	return &Document{
		Title:  title,
		Text:   normalizeWhitespace(stripMarkdownSyntax(markdown)),
		Format: FormatHTML,
	}, nil
}

// normalizeMarkdown strips frontmatter and block syntax, keeping prose.
func normalizeMarkdown(content string) (*Document, error) {
	frontmatter, body := splitFrontmatter(content)

	doc := &Document{
		Text:        normalizeWhitespace(stripMarkdownSyntax(body)),
		Format:      FormatMarkdown,
		Frontmatter: frontmatter,
	}
	if t, ok := frontmatter["title"].(string); ok {
		doc.Title = t
	}
	if doc.Title == "" {
		doc.Title = firstHeading(body)
	}
	return doc, nil
}

// splitFrontmatter parses leading YAML frontmatter. On any parse failure the
// whole content is treated as body; malformed frontmatter never rejects a
// document.
func splitFrontmatter(content string) (map[string]any, string) {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return nil, content
	}
	rest := content[strings.Index(content, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, content
	}
	var fm map[string]any
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return nil, content
	}
	body := rest[end+len("\n---"):]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return fm, body
}

// firstHeading returns the first markdown heading's text, if any.
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "# "))
		}
	}
	return ""
}

// stripMarkdownSyntax removes block and inline markdown decoration, keeping
// the prose content. Fenced code blocks are dropped entirely; the pipeline
// extracts entities from prose, not code.
func stripMarkdownSyntax(content string) string {
	var out []string
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		trimmed = strings.TrimLeft(trimmed, "#> ")
		trimmed = strings.TrimPrefix(trimmed, "- ")
		trimmed = strings.TrimPrefix(trimmed, "* ")
		trimmed = strings.ReplaceAll(trimmed, "**", "")
		trimmed = strings.ReplaceAll(trimmed, "`", "")
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// normalizeWhitespace collapses runs of blank lines to a single blank line and
// trims the edges, giving stable paragraph boundaries.
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = excessiveLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// extractHTMLTitle walks the parse tree for the <title> element.
func extractHTMLTitle(content []byte) string {
	doc, err := html.Parse(strings.NewReader(string(content)))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
