package render

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is an HTML tree the widget renders into.
type Document struct {
	root *html.Node
}

// NewDocument wraps an existing tree.
func NewDocument(root *html.Node) *Document {
	return &Document{root: root}
}

// ParseDocument parses a full HTML document.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// Root returns the top node of the tree.
func (d *Document) Root() *html.Node {
	return d.root
}

// ElementByID returns the first element whose id attribute is id, or nil.
func (d *Document) ElementByID(id string) *html.Node {
	if d == nil || d.root == nil || id == "" {
		return nil
	}
	if d.root.Type == html.ElementNode && Attr(d.root, "id") == id {
		return d.root
	}
	for n := range d.root.Descendants() {
		if n.Type == html.ElementNode && Attr(n, "id") == id {
			return n
		}
	}
	return nil
}

// Render writes the whole tree as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// RenderNode writes n and its subtree as HTML.
func RenderNode(w io.Writer, n *html.Node) error {
	return html.Render(w, n)
}

// RenderChildren writes the children of n as HTML, without n itself.
func RenderChildren(w io.Writer, n *html.Node) error {
	for c := range n.ChildNodes() {
		if err := html.Render(w, c); err != nil {
			return err
		}
	}
	return nil
}

// Element creates a detached element with the given class (if any).
func Element(a atom.Atom, class string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	if class != "" {
		SetAttr(n, "class", class)
	}
	return n
}

// Attr returns the value of attribute key on n, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries attribute key.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets attribute key on n, replacing an existing value.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// ClearChildren detaches every child of n.
func ClearChildren(n *html.Node) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
}

// SetText replaces the children of n with a single text node.
func SetText(n *html.Node, text string) {
	ClearChildren(n)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// SetInnerHTML replaces the children of n with the parsed markup s.
// Markup is trusted as-is; callers that need escaping must do it first.
func SetInnerHTML(n *html.Node, s string) error {
	nodes, err := html.ParseFragment(strings.NewReader(s), &html.Node{
		Type:     html.ElementNode,
		DataAtom: n.DataAtom,
		Data:     n.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to parse markup: %w", err)
	}
	ClearChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
	return nil
}

// TextContent returns the concatenated text below n.
func TextContent(n *html.Node) string {
	var b strings.Builder
	for c := range n.Descendants() {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// HasClass reports whether the class attribute of n contains class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// ElementsByClass returns the elements below n carrying class, in document order.
func ElementsByClass(n *html.Node, class string) []*html.Node {
	var out []*html.Node
	for c := range n.Descendants() {
		if c.Type == html.ElementNode && HasClass(c, class) {
			out = append(out, c)
		}
	}
	return out
}
