package xcontest

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// startLayout is the date+time format used in flight detail links,
// e.g. "17.5.2020/14:02". Times are local to the site's timezone.
const (
	startLayout    = "2.1.2006 15:04"
	sourceTimezone = "Europe/Prague"
)

// Parser is a pure page-to-flights transformation. Any row that does not
// match the expected markup is a hard ParseError: silent skipping would
// hide upstream format drift.
type Parser struct {
	base *url.URL
	loc  *time.Location
}

// NewParser creates a parser resolving relative links against baseURL
func NewParser(baseURL string) (*Parser, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	loc, err := time.LoadLocation(sourceTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load source timezone: %w", err)
	}
	return &Parser{base: base, loc: loc}, nil
}

// ParseFlights extracts all flight rows from one listing page. A page
// without a flight table is an empty result, not an error.
func (p *Parser) ParseFlights(body []byte) ([]Flight, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, parseErrorf("invalid HTML: %v", err)
	}

	table := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "table" && hasClass(n, "flights")
	})
	if table == nil {
		return nil, nil
	}

	rows := findAll(table, func(n *html.Node) bool {
		return n.Data == "tr" && ancestorTag(n, "tbody") != nil
	})

	flights := make([]Flight, 0, len(rows))
	for _, row := range rows {
		flight, err := p.parseRow(row)
		if err != nil {
			return nil, err
		}
		flights = append(flights, flight)
	}
	return flights, nil
}

// parseRow extracts one Flight from a table row
func (p *Parser) parseRow(row *html.Node) (Flight, error) {
	// row id attribute carries the site's internal flight id
	id, ok := strings.CutPrefix(attr(row, "id"), "flight-")
	if !ok || id == "" {
		return Flight{}, parseErrorf("flight row without id attribute (got %q)", attr(row, "id"))
	}

	detail := findFirst(row, func(n *html.Node) bool {
		return n.Data == "a" && hasClass(n, "detail")
	})
	if detail == nil {
		return Flight{}, parseErrorf("flight row %s has no detail link", id)
	}
	href := attr(detail, "href")
	if href == "" {
		return Flight{}, parseErrorf("flight row %s has an empty detail link", id)
	}

	ref, err := url.Parse(href)
	if err != nil {
		return Flight{}, parseErrorf("flight row %s has an invalid detail link: %v", id, err)
	}
	link := p.base.ResolveReference(ref)

	// link path is .../detail:<username>/<d.m.yyyy>/<hh:mm>
	segments := strings.Split(strings.Trim(link.Path, "/"), "/")
	if len(segments) < 3 {
		return Flight{}, parseErrorf("flight row %s detail link has too few path segments: %s", id, link.Path)
	}
	username, ok := strings.CutPrefix(segments[len(segments)-3], "detail:")
	if !ok || username == "" {
		return Flight{}, parseErrorf("flight row %s detail link has no pilot segment: %s", id, link.Path)
	}

	start, err := time.ParseInLocation(startLayout, segments[len(segments)-2]+" "+segments[len(segments)-1], p.loc)
	if err != nil {
		return Flight{}, parseErrorf("flight row %s has an unparseable start time: %v", id, err)
	}

	name := findFirst(row, func(n *html.Node) bool { return hasClass(n, "plt") })
	if name == nil {
		return Flight{}, parseErrorf("flight row %s has no pilot name cell", id)
	}

	return Flight{
		ID:   id,
		Link: link.String(),
		Pilot: Pilot{
			Username: username,
			Name:     nodeText(name),
		},
		Start: start,
	}, nil
}

// HasNextPage inspects the pager control of a listing page. No pager means
// a single (or empty) page. Otherwise there are more pages unless the
// "current page" marker (a strong element, not a link) is the last entry
// once the edge arrows are filtered out.
func (p *Parser) HasNextPage(body []byte) bool {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return false
	}

	paging := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "div" && hasClass(n, "paging")
	})
	if paging == nil {
		return false
	}

	var entries []*html.Node
	for child := paging.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && !hasClass(child, "pg-edge") {
			entries = append(entries, child)
		}
	}
	if len(entries) == 0 {
		return false
	}
	return entries[len(entries)-1].Data != "strong"
}

// --- small html.Node helpers ---

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root.Type == html.ElementNode && match(root) {
		return root
	}
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var nodes []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			nodes = append(nodes, n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return nodes
}

func ancestorTag(n *html.Node, tag string) *html.Node {
	for parent := n.Parent; parent != nil; parent = parent.Parent {
		if parent.Type == html.ElementNode && parent.Data == tag {
			return parent
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
