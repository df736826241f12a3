package dispatch

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// Row keeps result columns in result-set order. Names are kept as the
// driver reports them and duplicates are not merged.
type Row struct {
	cols []string
	vals []any
}

// ResultSet is the ordered list of rows a dispatch returns.
type ResultSet []Row

func NewRow(cols []string, vals []any) Row {
	return Row{cols: cols, vals: vals}
}

func (r Row) Columns() []string { return r.cols }

func (r Row) Values() []any { return r.vals }

func (r Row) Len() int { return len(r.cols) }

// Get returns the first value under name, falling back to a
// case-insensitive match.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.cols {
		if c == name {
			return r.vals[i], true
		}
	}
	for i, c := range r.cols {
		if strings.EqualFold(c, name) {
			return r.vals[i], true
		}
	}
	return nil, false
}

// String returns a textual column or def when it is absent or not text.
func (r Row) String(name, def string) string {
	v, ok := r.Get(name)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Reader returns a streamed FILEDATA-style column.
func (r Row) Reader(name string) (io.Reader, bool) {
	v, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	rd, ok := v.(io.Reader)
	return rd, ok
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		v := r.vals[i]
		if _, ok := v.(io.Reader); ok {
			v = nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (rs ResultSet) MarshalJSON() ([]byte, error) {
	if rs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Row(rs))
}
