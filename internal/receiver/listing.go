package receiver

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultContainerID is the id of the element holding the message list.
const DefaultContainerID = "email-list"

var (
	// /inbox/<domain>/<name>/message-<id>/
	messageIDPattern = regexp.MustCompile(`/inbox/[^/]+/[^/]+/message-([^ /]+)/`)
	// "<display name> <address>", entities already decoded by the parser.
	senderPattern = regexp.MustCompile(`[^<]+ <([^>]+)>`)

	errMissingNode = errors.New("missing node")
)

// ListingParser turns an inbox listing page into its entries.
type ListingParser interface {
	// Parse returns the entries in document order. On a malformed entry it
	// returns the entries before it and an *EntryError.
	Parse(r io.Reader) ([]Entry, error)
}

// HTMLListingParser parses listing pages of the form
//
//	<ul id="email-list">
//	  <li><a href="/inbox/<domain>/<name>/message-<id>/">
//	    <dl><dt>Name &lt;address&gt;</dt><dd>Subject</dd></dl>
//	  </a></li>
//	</ul>
type HTMLListingParser struct {
	// ContainerID overrides DefaultContainerID.
	ContainerID string
}

func (p HTMLListingParser) Parse(r io.Reader) ([]Entry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	id := p.ContainerID
	if id == "" {
		id = DefaultContainerID
	}
	list := findByID(doc, id)
	if list == nil {
		return nil, ErrNoListing
	}

	var entries []Entry
	for i, item := range significantChildren(list) {
		entry, err := parseEntry(i, item)
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseEntry(index int, item *html.Node) (Entry, error) {
	var link *html.Node
	for _, c := range significantChildren(item) {
		if c.Type == html.ElementNode && c.DataAtom == atom.A {
			link = c
			break
		}
	}
	if link == nil {
		return Entry{}, &EntryError{Index: index, Field: "link", Err: errMissingNode}
	}

	parts := significantChildren(link)
	if len(parts) == 0 {
		return Entry{}, &EntryError{Index: index, Field: "from", Err: errMissingNode}
	}
	fields := significantChildren(parts[0])
	if len(fields) == 0 {
		return Entry{}, &EntryError{Index: index, Field: "from", Err: errMissingNode}
	}

	fromText := textContent(fields[0])
	m := senderPattern.FindStringSubmatch(fromText)
	if m == nil {
		return Entry{}, &EntryError{
			Index: index,
			Field: "from",
			Err:   fmt.Errorf("%q does not look like \"name <address>\"", fromText),
		}
	}
	from := m[1]

	if len(fields) < 2 {
		return Entry{}, &EntryError{Index: index, Field: "subject", Err: errMissingNode}
	}
	subject := strings.TrimSpace(textContent(fields[1]))

	href := attr(link, "href")
	m = messageIDPattern.FindStringSubmatch(href)
	if m == nil {
		return Entry{}, &EntryError{
			Index: index,
			Field: "id",
			Err:   fmt.Errorf("no message id in href %q", href),
		}
	}

	return Entry{ID: m[1], From: from, Subject: subject}, nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// significantChildren returns element and non-blank text children;
// whitespace between tags is not an entry.
func significantChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			out = append(out, c)
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
