package playwright

import (
	"strings"

	"golang.org/x/net/html"
)

// extractMarkdown renders the page HTML into a compact markdown-flavoured
// text form: headings are prefixed with '#', anchors become [text](href),
// script/style/head subtrees are skipped.
func extractMarkdown(pageHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	walk(doc, &b)
	return collapseBlank(b.String()), nil
}

var headingPrefix = map[string]string{
	"h1": "# ", "h2": "## ", "h3": "### ",
	"h4": "#### ", "h5": "##### ", "h6": "###### ",
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"li": true, "tr": true, "br": true, "ul": true, "ol": true,
	"table": true, "blockquote": true, "pre": true,
}

func walk(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "head", "noscript", "iframe":
			return
		case "a":
			writeAnchor(n, b)
			return
		}
		if prefix, ok := headingPrefix[n.Data]; ok {
			b.WriteString("\n")
			b.WriteString(prefix)
			walkChildren(n, b)
			b.WriteString("\n")
			return
		}
		if blockElements[n.Data] {
			walkChildren(n, b)
			b.WriteString("\n")
			return
		}
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			b.WriteString(text)
			b.WriteString(" ")
		}
		return
	}
	walkChildren(n, b)
}

func walkChildren(n *html.Node, b *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, b)
	}
}

func writeAnchor(n *html.Node, b *strings.Builder) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = attr.Val
			break
		}
	}

	var text strings.Builder
	walkChildren(n, &text)
	label := strings.TrimSpace(text.String())

	switch {
	case label == "":
		return
	case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:"):
		b.WriteString(label)
		b.WriteString(" ")
	default:
		b.WriteString("[" + label + "](" + href + ") ")
	}
}

// collapseBlank squeezes runs of blank lines and trailing spaces that the
// node walk leaves behind.
func collapseBlank(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
