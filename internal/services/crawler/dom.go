package crawler

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/pharmyrus/internal/interfaces"
)

// htmlNode adapts a goquery selection of exactly one element to DOMNode.
type htmlNode struct {
	sel *goquery.Selection
}

func (n htmlNode) Text() string {
	return normalizeSpace(n.sel.Text())
}

func (n htmlNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n htmlNode) QueryAll(loc interfaces.Locator) []interfaces.DOMNode {
	return resolveLocator(n.sel, loc)
}

// createDocument parses an HTML snapshot into a goquery document
func createDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// resolveLocator applies a locator below root: CSS match, optional
// case-insensitive text filter, then an optional hop to the adjacent sibling.
func resolveLocator(root *goquery.Selection, loc interfaces.Locator) []interfaces.DOMNode {
	if root == nil || loc.CSS == "" {
		return nil
	}

	var nodes []interfaces.DOMNode
	contains := strings.ToLower(loc.Contains)

	root.Find(loc.CSS).Each(func(_ int, s *goquery.Selection) {
		if contains != "" && !strings.Contains(strings.ToLower(s.Text()), contains) {
			return
		}
		target := s
		if loc.Next != "" {
			target = s.NextFiltered(loc.Next)
			if target.Length() == 0 {
				return
			}
		}
		nodes = append(nodes, htmlNode{sel: target.First()})
	})

	return nodes
}

// normalizeSpace collapses runs of whitespace to single spaces
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
