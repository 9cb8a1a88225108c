// Package star reads and writes RELION STAR metadata files.
//
// A file is a sequence of data blocks. Each block is either a loop (a table with
// one row per particle) or a list of key/value pairs. Values are kept as the text
// tokens found in the file, so columns this package knows nothing about are
// written back exactly as they were read.
package star

import (
	"fmt"
	"strconv"
)

// Header is an ordered list of column labels. It is never modified after it is
// built and is shared by all the records of a table.
type Header struct {
	labels []string
	index  map[string]int
}

// NewHeader builds a header from labels. Duplicated labels keep their first position.
func NewHeader(labels ...string) *Header {
	h := &Header{index: make(map[string]int, len(labels))}
	for _, l := range labels {
		if _, ok := h.index[l]; ok {
			continue
		}
		h.index[l] = len(h.labels)
		h.labels = append(h.labels, l)
	}
	return h
}

// Labels returns a copy of the labels in column order.
func (h *Header) Labels() []string {
	out := make([]string, len(h.labels))
	copy(out, h.labels)
	return out
}

func (h *Header) Len() int { return len(h.labels) }

// Index returns the column of label.
func (h *Header) Index(label string) (int, bool) {
	i, ok := h.index[label]
	return i, ok
}

func (h *Header) Has(label string) bool {
	_, ok := h.index[label]
	return ok
}

// With returns a header with the missing labels appended, or h itself when
// nothing is missing.
func (h *Header) With(labels ...string) *Header {
	missing := false
	for _, l := range labels {
		if !h.Has(l) {
			missing = true
			break
		}
	}
	if !missing {
		return h
	}
	return NewHeader(append(h.Labels(), labels...)...)
}

// Without returns a header without the given labels, or h itself when none are present.
func (h *Header) Without(labels ...string) *Header {
	drop := make(map[string]bool, len(labels))
	for _, l := range labels {
		if h.Has(l) {
			drop[l] = true
		}
	}
	if len(drop) == 0 {
		return h
	}
	kept := make([]string, 0, len(h.labels))
	for _, l := range h.labels {
		if !drop[l] {
			kept = append(kept, l)
		}
	}
	return NewHeader(kept...)
}

// Record is one row of a table.
type Record struct {
	header *Header
	values []string
}

// NewRecord builds a record. values must have one entry per header label.
func NewRecord(h *Header, values []string) (Record, error) {
	if len(values) != h.Len() {
		return Record{}, fmt.Errorf("record has %d values, header has %d labels", len(values), h.Len())
	}
	return Record{header: h, values: values}, nil
}

func (r Record) Header() *Header { return r.header }

// Values returns a copy of the tokens in column order.
func (r Record) Values() []string {
	out := make([]string, len(r.values))
	copy(out, r.values)
	return out
}

// Get returns the token stored under label.
func (r Record) Get(label string) (string, bool) {
	if r.header == nil {
		return "", false
	}
	i, ok := r.header.Index(label)
	if !ok {
		return "", false
	}
	return r.values[i], true
}

// Float parses the value stored under label.
func (r Record) Float(label string) (float64, error) {
	s, ok := r.Get(label)
	if !ok {
		return 0, fmt.Errorf("missing label %s", label)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("label %s: %w", label, err)
	}
	return v, nil
}

// Set stores value under label, appending the column when the record lacks it.
func (r *Record) Set(label, value string) {
	if r.header == nil {
		r.header = NewHeader()
	}
	if i, ok := r.header.Index(label); ok {
		r.values[i] = value
		return
	}
	r.header = r.header.With(label)
	r.values = append(r.values, value)
}

// SetFloat stores v under label with six decimals, as RELION writes angles.
func (r *Record) SetFloat(label string, v float64) {
	r.Set(label, FormatFloat(v))
}

// FormatFloat formats a value the way SetFloat stores it.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Clone returns a record that shares the header but not the values.
func (r Record) Clone() Record {
	return Record{header: r.header, values: r.Values()}
}

// Project returns the record laid out under h. Labels of h the record does not
// have are filled with "0".
func (r Record) Project(h *Header) Record {
	if h == r.header {
		return r.Clone()
	}
	values := make([]string, h.Len())
	for i, l := range h.labels {
		if v, ok := r.Get(l); ok {
			values[i] = v
		} else {
			values[i] = "0"
		}
	}
	return Record{header: h, values: values}
}

// Table is one data block.
type Table struct {
	// Name is the block name without the data_ prefix, e.g. "particles"
	Name string

	// Loop is false for key/value blocks, which hold a single record
	Loop bool

	Header  *Header
	Records []Record
}

// NewTable returns an empty loop table with the given labels.
func NewTable(name string, labels ...string) *Table {
	return &Table{Name: name, Loop: true, Header: NewHeader(labels...)}
}

// Labels returns the column labels.
func (t *Table) Labels() []string { return t.Header.Labels() }

func (t *Table) HasLabel(label string) bool { return t.Header.Has(label) }

// Len returns the number of records.
func (t *Table) Len() int { return len(t.Records) }

// Append adds a record built from values.
func (t *Table) Append(values ...string) error {
	r, err := NewRecord(t.Header, values)
	if err != nil {
		return err
	}
	t.Records = append(t.Records, r)
	return nil
}

// AddLabels appends the missing labels. Existing records get "0" in the new columns.
func (t *Table) AddLabels(labels ...string) {
	t.reshape(t.Header.With(labels...))
}

// RemoveLabels drops the given columns. Labels the table lacks are ignored.
func (t *Table) RemoveLabels(labels ...string) {
	t.reshape(t.Header.Without(labels...))
}

func (t *Table) reshape(h *Header) {
	if h == t.Header {
		return
	}
	for i, r := range t.Records {
		t.Records[i] = r.Project(h)
	}
	t.Header = h
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{Name: t.Name, Loop: t.Loop, Header: t.Header, Records: make([]Record, len(t.Records))}
	for i, r := range t.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// File is a parsed STAR file.
type File struct {
	// Version is the number of a leading "# version N" comment, empty when absent
	Version string

	Blocks []*Table
}

// Block returns the block with the given name.
func (f *File) Block(name string) *Table {
	for _, b := range f.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Particles returns the particle table: the "particles" block of RELION 3.1
// files, or the first loop block of older files.
func (f *File) Particles() *Table {
	if t := f.Block("particles"); t != nil {
		return t
	}
	for _, b := range f.Blocks {
		if b.Loop {
			return b
		}
	}
	return nil
}

// ReplaceParticles returns a shallow copy of f with the particle table swapped for t.
// Other blocks are shared.
func (f *File) ReplaceParticles(t *Table) *File {
	out := &File{Version: f.Version, Blocks: make([]*Table, len(f.Blocks))}
	copy(out.Blocks, f.Blocks)
	old := f.Particles()
	for i, b := range out.Blocks {
		if b == old {
			out.Blocks[i] = t
			return out
		}
	}
	out.Blocks = append(out.Blocks, t)
	return out
}
