package interfaces

import (
	"context"
	"strings"
	"time"
)

// Locator addresses DOM nodes on a rendered page.
// CSS is a plain CSS selector. Contains optionally keeps only nodes whose text
// contains the value (case-insensitive). Next optionally moves from each kept
// node to its immediately following sibling matching that selector, which is
// how label/value table cells are reached.
type Locator struct {
	CSS      string
	Contains string
	Next     string
}

// String renders the locator in the pseudo-selector form used in debug output.
func (l Locator) String() string {
	var b strings.Builder
	b.WriteString(l.CSS)
	if l.Contains != "" {
		b.WriteString(`:has-text("`)
		b.WriteString(l.Contains)
		b.WriteString(`")`)
	}
	if l.Next != "" {
		b.WriteString(" + ")
		b.WriteString(l.Next)
	}
	return b.String()
}

// DOMNode is a read-only view of one element from a page snapshot.
type DOMNode interface {
	// Text returns the element's whitespace-normalised text content
	Text() string

	// Attr returns an attribute value and whether it was present
	Attr(name string) (string, bool)

	// QueryAll resolves a locator relative to this element
	QueryAll(loc Locator) []DOMNode
}

// PageSession drives one browser tab.
// Implementations fail with a navigation or element-not-found error and never
// block past the wait bound they are given.
type PageSession interface {
	// Navigate loads url and waits for the document body
	Navigate(ctx context.Context, url string) error

	// Click tries each locator in order and clicks the first element found.
	// Returns the locator that was clicked.
	Click(ctx context.Context, locators []Locator) (Locator, error)

	// WaitForCondition polls pred against fresh page state until it returns
	// true or maxWait elapses.
	WaitForCondition(ctx context.Context, pred func(ctx context.Context) bool, maxWait time.Duration) error

	// QueryAll returns every node matching loc in the current page
	QueryAll(ctx context.Context, loc Locator) ([]DOMNode, error)

	// URL returns the page's current location
	URL() string

	// Close releases the tab
	Close() error
}

// SessionFactory opens page sessions. The crawler pool bounds how many are
// open at once.
type SessionFactory interface {
	NewSession(ctx context.Context) (PageSession, error)
}
