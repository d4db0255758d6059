package document

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// HTML is a Sink backed by a parsed HTML document. It is safe for concurrent use.
type HTML struct {
	logger *zap.Logger
	lock   sync.RWMutex
	root   *html.Node
}

// NewHTML wraps an already parsed document.
func NewHTML(root *html.Node, logger *zap.Logger) *HTML {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTML{root: root, logger: logger.Named("document")}
}

// ParseHTML parses a whole HTML document.
func ParseHTML(r io.Reader, logger *zap.Logger) (*HTML, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("cannot parse HTML document: %w", err)
	}
	return NewHTML(root, logger), nil
}

// MustParseHTML parses a whole HTML document from a string, it panics on error.
func MustParseHTML(s string) *HTML {
	d, err := ParseHTML(strings.NewReader(s), nil)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *HTML) Resolve(id string) (Node, bool) {
	if id == "" {
		return nil, false
	}
	d.lock.RLock()
	defer d.lock.RUnlock()
	node, err := htmlquery.Query(d.root, "//*[@id="+xpathLiteral(id)+"]")
	if err != nil || node == nil {
		return nil, false
	}
	return node, true
}

func (d *HTML) SetContent(node Node, content string) error {
	el, err := element(node)
	if err != nil {
		return err
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), el)
	if err != nil {
		return fmt.Errorf(`cannot parse content for element "%s": %w`, describe(el), err)
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	for c := el.FirstChild; c != nil; {
		next := c.NextSibling
		el.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		el.AppendChild(n)
	}
	d.logger.Debug("content replaced", zap.String("element", describe(el)), zap.Int("nodes", len(nodes)))
	return nil
}

func (d *HTML) InsertContent(node Node, position Position, content string) error {
	el, err := element(node)
	if err != nil {
		return err
	}

	// Siblings are parsed in the context of the parent element
	parseCtx := el
	if position == Before || position == After {
		if el.Parent == nil || el.Parent.Type != html.ElementNode {
			return fmt.Errorf(`cannot insert content %s element "%s": element has no parent element`, position, describe(el))
		}
		parseCtx = el.Parent
	}
	nodes, err := html.ParseFragment(strings.NewReader(content), parseCtx)
	if err != nil {
		return fmt.Errorf(`cannot parse content for element "%s": %w`, describe(el), err)
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	switch position {
	case Before:
		for _, n := range nodes {
			el.Parent.InsertBefore(n, el)
		}
	case After:
		next := el.NextSibling
		for _, n := range nodes {
			el.Parent.InsertBefore(n, next)
		}
	case Top:
		first := el.FirstChild
		for _, n := range nodes {
			el.InsertBefore(n, first)
		}
	case Bottom:
		for _, n := range nodes {
			el.AppendChild(n)
		}
	default:
		return fmt.Errorf(`invalid insertion position "%s"`, position)
	}
	d.logger.Debug("content inserted", zap.String("element", describe(el)), zap.String("position", string(position)), zap.Int("nodes", len(nodes)))
	return nil
}

// InnerHTML returns the serialized children of the element.
func (d *HTML) InnerHTML(node Node) (string, error) {
	el, err := element(node)
	if err != nil {
		return "", err
	}
	d.lock.RLock()
	defer d.lock.RUnlock()
	return htmlquery.OutputHTML(el, false), nil
}

// InnerText returns the text content of the element.
func (d *HTML) InnerText(node Node) (string, error) {
	el, err := element(node)
	if err != nil {
		return "", err
	}
	d.lock.RLock()
	defer d.lock.RUnlock()
	return htmlquery.InnerText(el), nil
}

// NextElement returns the next sibling element, text and comment nodes are skipped.
func (d *HTML) NextElement(node Node) (Node, bool) {
	el, err := element(node)
	if err != nil {
		return nil, false
	}
	d.lock.RLock()
	defer d.lock.RUnlock()
	for n := el.NextSibling; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			return n, true
		}
	}
	return nil, false
}

// PreviousElement returns the previous sibling element, text and comment nodes are skipped.
func (d *HTML) PreviousElement(node Node) (Node, bool) {
	el, err := element(node)
	if err != nil {
		return nil, false
	}
	d.lock.RLock()
	defer d.lock.RUnlock()
	for n := el.PrevSibling; n != nil; n = n.PrevSibling {
		if n.Type == html.ElementNode {
			return n, true
		}
	}
	return nil, false
}

// Render writes the whole document.
func (d *HTML) Render(w io.Writer) error {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return html.Render(w, d.root)
}

func (d *HTML) String() string {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		d.logger.Warn("cannot render document", zap.Error(err))
	}
	return b.String()
}

func element(node Node) (*html.Node, error) {
	el, ok := node.(*html.Node)
	if !ok || el == nil {
		return nil, fmt.Errorf(`expected *html.Node, given "%T"`, node)
	}
	if el.Type != html.ElementNode {
		return nil, fmt.Errorf(`node "%s" is not an element`, el.Data)
	}
	return el, nil
}

func describe(el *html.Node) string {
	if id := htmlquery.SelectAttr(el, "id"); id != "" {
		return el.Data + "#" + id
	}
	return el.Data
}

// xpathLiteral quotes the value for use in an XPath expression.
func xpathLiteral(v string) string {
	switch {
	case !strings.Contains(v, "'"):
		return "'" + v + "'"
	case !strings.Contains(v, `"`):
		return `"` + v + `"`
	default:
		parts := strings.Split(v, "'")
		return "concat('" + strings.Join(parts, `', "'", '`) + "')"
	}
}
