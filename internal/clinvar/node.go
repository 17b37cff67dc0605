package clinvar

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Attr is a single XML attribute with its qualified name (e.g. "xsi:noNamespaceSchemaLocation").
type Attr struct {
	Name  string
	Value string
}

// Node is a minimal element tree built from the XML token stream. It keeps
// attribute order so records can be written back faithfully.
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// NewElement creates a node with the given name and alternating attribute name/value pairs.
func NewElement(name string, attrs ...string) *Node {
	n := &Node{Name: name}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attrs = append(n.Attrs, Attr{Name: attrs[i], Value: attrs[i+1]})
	}
	return n
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrOr returns the value of the named attribute or def when absent.
func (n *Node) AttrOr(name, def string) string {
	if v, ok := n.Attr(name); ok {
		return v
	}
	return def
}

// SetAttr sets an attribute, replacing an existing value in place.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Append adds children to the end of the node.
func (n *Node) Append(children ...*Node) {
	n.Children = append(n.Children, children...)
}

// FindAll returns all descendants matching a simple path such as
// "./MeasureSet[@Type=\"Variant\"]/Measure" or "Classifications/*".
func (n *Node) FindAll(path string) []*Node {
	steps := compilePath(path)
	current := []*Node{n}
	for _, s := range steps {
		var next []*Node
		for _, c := range current {
			for _, child := range c.Children {
				if s.matches(child) {
					next = append(next, child)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

// FindOptional returns the single node matching path, nil when there is none,
// and a CardinalityError when there is more than one.
func (n *Node) FindOptional(path string) (*Node, error) {
	found := n.FindAll(path)
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, &CardinalityError{Path: path, Count: len(found)}
	}
}

// FindMandatory returns the single node matching path or a CardinalityError.
func (n *Node) FindMandatory(path string) (*Node, error) {
	found := n.FindAll(path)
	if len(found) != 1 {
		return nil, &CardinalityError{Path: path, Count: len(found)}
	}
	return found[0], nil
}

// Texts returns the text of every node matching path.
func (n *Node) Texts(path string) []string {
	found := n.FindAll(path)
	out := make([]string, 0, len(found))
	for _, f := range found {
		out = append(out, f.Text)
	}
	return out
}

type pathStep struct {
	name     string // "*" matches any element
	attr     string
	value    string
	hasAttr  bool
	hasValue bool
}

func (s pathStep) matches(n *Node) bool {
	if s.name != "*" && s.name != n.Name {
		return false
	}
	if !s.hasAttr {
		return true
	}
	v, ok := n.Attr(s.attr)
	if !ok {
		return false
	}
	return !s.hasValue || v == s.value
}

var pathCache sync.Map

func compilePath(path string) []pathStep {
	if cached, ok := pathCache.Load(path); ok {
		return cached.([]pathStep)
	}
	p := strings.TrimPrefix(path, "./")
	var steps []pathStep
	for _, raw := range strings.Split(p, "/") {
		if raw == "" || raw == "." {
			continue
		}
		step := pathStep{name: raw}
		if i := strings.IndexByte(raw, '['); i >= 0 && strings.HasSuffix(raw, "]") {
			step.name = raw[:i]
			pred := strings.TrimPrefix(raw[i+1:len(raw)-1], "@")
			step.hasAttr = true
			if eq := strings.IndexByte(pred, '='); eq >= 0 {
				step.attr = pred[:eq]
				step.value = strings.Trim(pred[eq+1:], `"'`)
				step.hasValue = true
			} else {
				step.attr = pred
			}
		}
		steps = append(steps, step)
	}
	pathCache.Store(path, steps)
	return steps
}

// qualifiedName maps a decoded xml.Name back to its prefixed form.
func qualifiedName(name xml.Name, prefixes map[string]string) string {
	switch {
	case name.Space == "":
		return name.Local
	case name.Space == "xmlns":
		return "xmlns:" + name.Local
	}
	if prefix, ok := prefixes[name.Space]; ok {
		return prefix + ":" + name.Local
	}
	if strings.Contains(name.Space, "/") {
		// Default namespace of an element, nothing to prefix.
		return name.Local
	}
	return name.Space + ":" + name.Local
}

// buildNode consumes tokens until the end element matching start.
func buildNode(dec *xml.Decoder, start xml.StartElement, prefixes map[string]string) (*Node, error) {
	n := &Node{Name: qualifiedName(start.Name, prefixes)}
	for _, a := range start.Attr {
		n.Attrs = append(n.Attrs, Attr{Name: qualifiedName(a.Name, prefixes), Value: a.Value})
	}
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("unexpected end of document inside <%s>", n.Name)
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := buildNode(dec, t, prefixes)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			n.Text = text.String()
			if len(n.Children) > 0 {
				n.Text = strings.TrimSpace(n.Text)
			}
			return n, nil
		}
	}
}

// WriteIndent pretty-prints the node with two-space indentation starting at depth.
func (n *Node) WriteIndent(w io.Writer, depth int) error {
	var buf bytes.Buffer
	n.render(&buf, depth)
	_, err := w.Write(buf.Bytes())
	return err
}

func (n *Node) render(buf *bytes.Buffer, depth int) {
	indent := strings.Repeat("  ", depth)
	buf.WriteString(indent)
	buf.WriteByte('<')
	buf.WriteString(n.Name)
	for _, a := range n.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		escape(buf, a.Value)
		buf.WriteByte('"')
	}
	switch {
	case len(n.Children) == 0 && n.Text == "":
		buf.WriteString("/>\n")
	case len(n.Children) == 0:
		buf.WriteByte('>')
		escape(buf, n.Text)
		buf.WriteString("</")
		buf.WriteString(n.Name)
		buf.WriteString(">\n")
	default:
		buf.WriteString(">\n")
		if n.Text != "" {
			buf.WriteString(indent)
			buf.WriteString("  ")
			escape(buf, n.Text)
			buf.WriteByte('\n')
		}
		for _, c := range n.Children {
			c.render(buf, depth+1)
		}
		buf.WriteString(indent)
		buf.WriteString("</")
		buf.WriteString(n.Name)
		buf.WriteString(">\n")
	}
}

func escape(buf *bytes.Buffer, s string) {
	// EscapeText only fails on writer errors, which bytes.Buffer never returns.
	_ = xml.EscapeText(buf, []byte(s))
}
