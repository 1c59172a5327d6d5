package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lance13c/qarun/internal/types"
)

// Live extraction strategies
const (
	StrategyHTML = "html"
	StrategyDOM  = "dom"
)

const maxTextLen = 80

// PageSource is the part of a browser session live extraction needs.
type PageSource interface {
	HTML(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, script string, out interface{}) error
}

// Extract builds a deduplicated catalog from the page currently loaded in src.
func Extract(ctx context.Context, src PageSource, strategy string) (types.Catalog, error) {
	switch strategy {
	case StrategyDOM:
		var catalog types.Catalog
		if err := src.Evaluate(ctx, DOMScript, &catalog); err != nil {
			return nil, fmt.Errorf("failed to extract locators from DOM: %w", err)
		}
		return Dedupe(catalog), nil
	case StrategyHTML, "":
		content, err := src.HTML(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read page HTML: %w", err)
		}
		return FromHTML(content)
	default:
		return nil, fmt.Errorf("unknown extraction strategy: %s", strategy)
	}
}

// FromHTML walks a rendered document and records every element carrying an
// id, class or name. Interactive elements additionally get their type,
// placeholder and visible text, plus an xpath when they have neither id nor
// name.
func FromHTML(content string) (types.Catalog, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML with goquery: %w", err)
	}

	doc.Find("script, style, noscript, template").Remove()

	var catalog types.Catalog
	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		node := s.Nodes[0]

		id, _ := s.Attr("id")
		class, _ := s.Attr("class")
		name, _ := s.Attr("name")
		class = strings.Join(strings.Fields(class), " ")

		interactive := isInteractive(node)
		if id == "" && class == "" && name == "" && !interactive {
			return
		}

		entry := types.LocatorEntry{ID: id, Class: class, Name: name}
		if interactive {
			entry.Type, _ = s.Attr("type")
			entry.Placeholder, _ = s.Attr("placeholder")
			entry.Text = collapse(s.Text())
			if id == "" && name == "" {
				entry.XPath = xpathOf(node)
			}
		}
		catalog = append(catalog, entry)
	})

	return Dedupe(catalog), nil
}

// isInteractive checks if a node is something a plan can act on
func isInteractive(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Button, atom.A, atom.Input, atom.Select, atom.Textarea, atom.Option:
		return true
	case atom.Div, atom.Span, atom.Li:
		for _, attr := range n.Attr {
			if attr.Key == "role" && (attr.Val == "button" || attr.Val == "link") {
				return true
			}
			if strings.HasPrefix(attr.Key, "on") {
				return true
			}
		}
	}
	return false
}

func collapse(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxTextLen {
		text = string(r[:maxTextLen])
	}
	return text
}

// xpathOf builds an absolute, index-qualified path such as /html/body/div[2]/a[1].
func xpathOf(n *html.Node) string {
	var parts []string
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		idx := 1
		for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == n.Data {
				idx++
			}
		}
		parts = append(parts, fmt.Sprintf("%s[%d]", n.Data, idx))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// DOMScript runs inside the page and returns the same entry shape FromHTML
// produces, read from the live DOM instead of serialized markup.
const DOMScript = `(() => {
	const interactive = new Set(['A', 'BUTTON', 'INPUT', 'SELECT', 'TEXTAREA', 'OPTION']);
	const xpath = (el) => {
		const parts = [];
		for (; el && el.nodeType === 1; el = el.parentNode) {
			let idx = 1;
			for (let sib = el.previousElementSibling; sib; sib = sib.previousElementSibling) {
				if (sib.tagName === el.tagName) idx++;
			}
			parts.unshift(el.tagName.toLowerCase() + '[' + idx + ']');
		}
		return '/' + parts.join('/');
	};
	const out = [];
	document.querySelectorAll('*').forEach((el) => {
		if (['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE'].includes(el.tagName)) return;
		const id = el.id || '';
		const cls = typeof el.className === 'string' ? el.className.trim().split(/\s+/).filter(Boolean).join(' ') : '';
		const name = el.getAttribute('name') || '';
		const isInteractive = interactive.has(el.tagName) || ['button', 'link'].includes(el.getAttribute('role'));
		if (!id && !cls && !name && !isInteractive) return;
		const entry = {};
		if (id) entry.id = id;
		if (cls) entry.class = cls;
		if (name) entry.name = name;
		if (isInteractive) {
			if (el.getAttribute('type')) entry.type = el.getAttribute('type');
			if (el.getAttribute('placeholder')) entry.placeholder = el.getAttribute('placeholder');
			const text = (el.textContent || '').replace(/\s+/g, ' ').trim().slice(0, 80);
			if (text) entry.text = text;
			if (!id && !name) entry.xpath = xpath(el);
		}
		out.push(entry);
	});
	return out;
})()`
