// Package csvexport turns a working set into a rectangular table and writes
// it as CSV.
//
// Column order is the code-point sort of every field path seen across the
// records, so exporting the same data twice yields identical bytes. Rows keep
// the order of the input records.
package csvexport

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strings"

	"formsummary/internal/instances"
	"formsummary/internal/xmlfield"
)

// InstanceIDColumn carries the instance file name without extension.
const InstanceIDColumn = "instanceID"

// Table is a header plus one row per record. Every row has len(Columns)
// cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ExtraColumns derives per-record values that override extracted fields of
// the same name.
type ExtraColumns func(instances.Instance) map[string]string

// InstanceID is the ExtraColumns used by exports: instanceID = file base name.
func InstanceID(in instances.Instance) map[string]string {
	return map[string]string{InstanceIDColumn: in.BaseName()}
}

// ToTable extracts every record's Field Map, overlays extra (may be nil) and
// builds the table. Unreadable documents contribute only their extra columns.
func ToTable(records []instances.Instance, extra ExtraColumns) Table {
	maps := make([]map[string]string, 0, len(records))
	for _, r := range records {
		m := xmlfield.ExtractAllFields(r.FilePath)
		if extra != nil {
			for k, v := range extra(r) {
				m[k] = v
			}
		}
		maps = append(maps, m)
	}
	return FromMaps(maps)
}

// FromMaps builds a table from already extracted field maps.
func FromMaps(maps []map[string]string) Table {
	set := make(map[string]struct{})
	for _, m := range maps {
		for k := range m {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	rows := make([][]string, 0, len(maps))
	for _, m := range maps {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = m[c]
		}
		rows = append(rows, row)
	}
	return Table{Columns: cols, Rows: rows}
}

// Empty reports whether the table has no data rows.
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// Records maps each row back to column -> value. Empty cells are kept.
func (t Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		m := make(map[string]string, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(row) {
				m[c] = row[i]
			} else {
				m[c] = ""
			}
		}
		out = append(out, m)
	}
	return out
}

// WriteTo writes the header and rows. Every cell is double-quoted with
// embedded quotes doubled; nothing else is escaped. Lines are joined by "\n"
// with no trailing newline.
func (t Table) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: bufio.NewWriter(w)}
	writeLine(cw, t.Columns)
	for _, row := range t.Rows {
		cw.WriteString("\n")
		writeLine(cw, row)
	}
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.Flush()
}

// Bytes returns the encoded CSV.
func (t Table) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = t.WriteTo(&buf)
	return buf.Bytes()
}

// Digest is the lowercase hex SHA-256 of the encoded CSV.
func (t Table) Digest() string {
	sum := sha256.Sum256(t.Bytes())
	return hex.EncodeToString(sum[:])
}

// QuoteCell wraps s in double quotes, doubling any quote inside.
func QuoteCell(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func writeLine(w *countWriter, cells []string) {
	for i, c := range cells {
		if i > 0 {
			w.WriteString(",")
		}
		w.WriteString(QuoteCell(c))
	}
}

// countWriter remembers the first error so callers check once.
type countWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countWriter) WriteString(s string) {
	if c.err != nil {
		return
	}
	n, err := c.w.WriteString(s)
	c.n += int64(n)
	c.err = err
}
