package star

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseError reports a malformed line.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// maxLineLength bounds a single line; particle rows with many columns can be long.
const maxLineLength = 1 << 20

// ReadFile reads a STAR file, decompressing .zst and .gz files.
func ReadFile(path string) (*File, error) {
	r, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	f, err := read(r, path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Read parses STAR text from r.
func Read(r io.Reader) (*File, error) {
	return read(r, "")
}

type parser struct {
	name  string
	line  int
	file  *File
	block *Table

	// loop state of the current block
	labels  []string
	inLoop  bool
	hasRows bool
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{File: p.name, Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func read(r io.Reader, name string) (*File, error) {
	p := &parser{name: name, file: &File{}}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	for scanner.Scan() {
		p.line++
		if err := p.parseLine(strings.TrimSpace(scanner.Text())); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := p.finishLoop(); err != nil {
		return nil, err
	}
	return p.file, nil
}

func (p *parser) parseLine(line string) error {
	switch {
	case line == "":
		return nil

	case strings.HasPrefix(line, "#"):
		if p.file.Version == "" && len(p.file.Blocks) == 0 {
			if f := strings.Fields(line); len(f) >= 3 && f[1] == "version" {
				p.file.Version = f[2]
			}
		}
		return nil

	case p.isRow(line):
		return p.addRow(line)

	case strings.HasPrefix(line, "data_"):
		if err := p.finishLoop(); err != nil {
			return err
		}
		p.block = &Table{Name: strings.TrimPrefix(line, "data_")}
		p.file.Blocks = append(p.file.Blocks, p.block)
		return nil
	}

	if p.block == nil {
		return p.errorf("content before the first data_ block")
	}

	switch {
	case strings.HasPrefix(line, "loop_"):
		if p.block.Loop || (p.block.Header != nil && p.block.Header.Len() > 0) {
			return p.errorf("second loop in block data_%s", p.block.Name)
		}
		p.block.Loop = true
		p.inLoop = true
		return nil

	case strings.HasPrefix(line, "_"):
		fields := strings.Fields(line)
		label := strings.TrimPrefix(fields[0], "_")
		if p.inLoop {
			if p.hasRows {
				return p.errorf("label _%s after loop data", label)
			}
			p.labels = append(p.labels, label)
			return nil
		}
		if len(fields) < 2 {
			return p.errorf("label _%s has no value", label)
		}
		p.addPair(label, strings.Join(fields[1:], " "))
		return nil
	}

	if !p.inLoop {
		return p.errorf("value outside a loop in block data_%s", p.block.Name)
	}
	if len(p.labels) == 0 {
		return p.errorf("loop data before any label")
	}
	return p.addRow(line)
}

// isRow reports whether a line of several fields inside a loop is data even though
// its first value starts like data_ or loop_. Keywords stand alone on their line.
// Before the first row a leading _ still marks a label.
func (p *parser) isRow(line string) bool {
	if !p.inLoop || len(p.labels) == 0 || !strings.ContainsAny(line, " \t") {
		return false
	}
	return p.hasRows || !strings.HasPrefix(line, "_")
}

func (p *parser) addRow(line string) error {
	if !p.hasRows {
		p.block.Header = NewHeader(p.labels...)
		if p.block.Header.Len() != len(p.labels) {
			return p.errorf("duplicated label in block data_%s", p.block.Name)
		}
		p.hasRows = true
	}
	values := strings.Fields(line)
	if len(values) != len(p.labels) {
		return p.errorf("row has %d values, expected %d", len(values), len(p.labels))
	}
	p.block.Records = append(p.block.Records, Record{header: p.block.Header, values: values})
	return nil
}

func (p *parser) addPair(label, value string) {
	if len(p.block.Records) == 0 {
		p.block.Header = NewHeader()
		p.block.Records = []Record{{header: p.block.Header}}
	}
	r := &p.block.Records[0]
	r.Set(label, value)
	p.block.Header = r.header
}

// finishLoop closes the loop of the current block. A loop with labels but no
// rows is a valid empty table.
func (p *parser) finishLoop() error {
	if p.inLoop && !p.hasRows {
		p.block.Header = NewHeader(p.labels...)
		if p.block.Header.Len() != len(p.labels) {
			return p.errorf("duplicated label in block data_%s", p.block.Name)
		}
	}
	if p.block != nil && p.block.Header == nil {
		p.block.Header = NewHeader()
	}
	p.labels = nil
	p.inLoop = false
	p.hasRows = false
	return nil
}
