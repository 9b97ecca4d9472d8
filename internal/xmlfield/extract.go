// Package xmlfield resolves field values from form-instance XML documents.
//
// Resilience:
// A missing or malformed document is never an error to callers of
// ExtractField / ExtractAllFields; it simply yields no values. One corrupt
// record must not abort a pass over many.
package xmlfield

import (
	"fmt"
	"io"
	"os"
	"strings"

	"formsummary/pkg/optional"
)

// PathSeparator joins ancestor element names in a field path.
const PathSeparator = "/"

// Document is one parsed instance. Parse once and query many times when
// several fields of the same record are needed in one pass.
type Document struct {
	root      *element
	rootAttrs map[string]string
}

// Parse reads a document from r.
func Parse(r io.Reader) (*Document, error) {
	root, attrs, err := parseTree(r)
	if err != nil {
		return nil, err
	}
	return &Document{root: root, rootAttrs: attrs}, nil
}

// Load opens and parses the document at path.
//
// Errors are returned here (unlike ExtractField) so callers that want to
// count or log unreadable records can.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open instance: %w", err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// Root returns the document element.
func (d *Document) Root() Node { return d.root }

// RootAttr returns an attribute of the root element by local name.
func (d *Document) RootAttr(name string) optional.Value[string] {
	v, ok := d.rootAttrs[name]
	if !ok {
		return optional.None[string]()
	}
	return optional.Some(v)
}

// Field returns the trimmed text of the first element, in document order,
// whose tag equals name. The root element itself is a candidate.
func (d *Document) Field(name string) optional.Value[string] {
	n, ok := Find(d.root, name)
	if !ok {
		return optional.None[string]()
	}
	return optional.Some(strings.TrimSpace(n.Text()))
}

// AllFields returns the document's Field Map.
func (d *Document) AllFields() map[string]string {
	return Leaves(d.root)
}

// ExtractField loads the document at path and resolves a single field.
// Missing files, parse failures and missing tags all come back absent.
func ExtractField(path, name string) optional.Value[string] {
	doc, err := Load(path)
	if err != nil {
		return optional.None[string]()
	}
	return doc.Field(name)
}

// ExtractAllFields loads the document at path and returns its Field Map.
// An unreadable document yields an empty (non-nil) map.
func ExtractAllFields(path string) map[string]string {
	doc, err := Load(path)
	if err != nil {
		return map[string]string{}
	}
	return doc.AllFields()
}

// Find returns the first node in pre-order (document order) whose tag equals
// name, starting with n itself.
func Find(n Node, name string) (Node, bool) {
	if n.Tag() == name {
		return n, true
	}
	for _, c := range n.Children() {
		if found, ok := Find(c, name); ok {
			return found, true
		}
	}
	return nil, false
}

// Leaves walks the tree below root and maps each leaf's path to its trimmed
// text.
//
// Semantics:
//   - The root segment is excluded from paths.
//   - An element with no child elements is a leaf, even when empty ("").
//   - An element with child elements is not recorded; its children are.
//   - Repeated paths are not disambiguated: the last occurrence wins.
func Leaves(root Node) map[string]string {
	out := make(map[string]string)
	collectLeaves(root, "", out)
	return out
}

func collectLeaves(n Node, prefix string, out map[string]string) {
	for _, c := range n.Children() {
		path := c.Tag()
		if prefix != "" {
			path = prefix + PathSeparator + c.Tag()
		}
		if len(c.Children()) == 0 {
			out[path] = strings.TrimSpace(c.Text())
			continue
		}
		collectLeaves(c, path, out)
	}
}
