package csvexport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadTable parses CSV written by Table.WriteTo (or any RFC 4180 file with a
// header row). A leading UTF-8 BOM is dropped. Short rows
// are padded with empty cells; long rows are rejected.
//
// encoding/csv folds "\r\n" to "\n" even inside quoted cells, so a cell
// holding a carriage return before a line feed reads back without the "\r".
// Every other cell round-trips exactly.
func ReadTable(r io.Reader) (Table, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	line := 1
	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	t := Table{Columns: hdr, Rows: [][]string{}}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		line++
		if err != nil {
			return Table{}, fmt.Errorf("csv read: %w", err)
		}
		if len(rec) > len(hdr) {
			return Table{}, fmt.Errorf("csv row %d: %d cells for %d columns", line, len(rec), len(hdr))
		}
		row := make([]string, len(hdr))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
}
