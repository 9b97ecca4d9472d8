package xmlfield

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// Node is the minimal tree view the extraction walks operate on. It is
// deliberately independent of encoding/xml so the same walks work over any
// tree-shaped document model.
type Node interface {
	// Tag is the element's local name (namespace prefix dropped).
	Tag() string
	// Children returns child elements in document order.
	Children() []Node
	// Text returns all descendant character data in document order,
	// untrimmed (DOM textContent semantics).
	Text() string
}

// element is the encoding/xml backed Node.
//
// content keeps character data and child elements interleaved so Text can
// reproduce document order.
type element struct {
	name    string
	content []segment
}

type segment struct {
	text  string
	child *element
}

func (e *element) Tag() string { return e.name }

func (e *element) Children() []Node {
	var out []Node
	for _, s := range e.content {
		if s.child != nil {
			out = append(out, s.child)
		}
	}
	return out
}

func (e *element) Text() string {
	var b strings.Builder
	e.writeText(&b)
	return b.String()
}

func (e *element) writeText(b *strings.Builder) {
	for _, s := range e.content {
		if s.child != nil {
			s.child.writeText(b)
			continue
		}
		b.WriteString(s.text)
	}
}

var (
	errNoRoot        = errors.New("no root element")
	errMultipleRoots = errors.New("multiple root elements")
	errTrailingText  = errors.New("character data outside root element")
)

// parseTree decodes a well-formed XML document into an element tree.
//
// Only element structure and character data survive; attributes are kept for
// the root element alone (instance stores read the form id from there).
// Comments, processing instructions and directives are skipped.
func parseTree(r io.Reader) (*element, map[string]string, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	dec.CharsetReader = charsetReader

	var (
		root      *element
		rootAttrs map[string]string
		stack     []*element
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("decode xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, nil, errMultipleRoots
				}
				root = el
				rootAttrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					rootAttrs[a.Name.Local] = a.Value
				}
			} else {
				parent := stack[len(stack)-1]
				parent.content = append(parent.content, segment{child: el})
			}
			stack = append(stack, el)

		case xml.EndElement:
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, nil, errTrailingText
				}
				continue
			}
			top := stack[len(stack)-1]
			top.content = append(top.content, segment{text: string(t)})
		}
	}

	if root == nil {
		return nil, nil, errNoRoot
	}
	if len(stack) != 0 {
		return nil, nil, fmt.Errorf("decode xml: unclosed element <%s>", stack[len(stack)-1].name)
	}
	return root, rootAttrs, nil
}

// charsetReader lets documents declared with a non-UTF-8 encoding (older
// devices write ISO-8859-1 now and then) decode through x/text.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
