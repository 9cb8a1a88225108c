package star

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriteFile writes f to path, compressing by extension. The file is written to a
// temporary name in the same directory and renamed into place, so a failed write
// never leaves a truncated table behind.
func WriteFile(path string, f *File) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", tmpName, err)
	}

	w, err := compressWriter(tmp, path)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := Write(w, f); err != nil {
		w.Close()
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// Write writes f as STAR text.
func Write(w io.Writer, f *File) error {
	bw := bufio.NewWriter(w)
	if f.Version != "" {
		fmt.Fprintf(bw, "\n# version %s\n", f.Version)
	}
	for _, t := range f.Blocks {
		writeTable(bw, t)
	}
	return bw.Flush()
}

// WriteTable writes a single block.
func WriteTable(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	writeTable(bw, t)
	return bw.Flush()
}

func writeTable(w *bufio.Writer, t *Table) {
	fmt.Fprintf(w, "\ndata_%s\n\n", t.Name)

	if !t.Loop {
		if len(t.Records) == 0 {
			return
		}
		r := t.Records[0]
		for i, l := range t.Header.labels {
			fmt.Fprintf(w, "_%-40s %s\n", l, r.values[i])
		}
		w.WriteString("\n")
		return
	}

	w.WriteString("loop_ \n")
	for i, l := range t.Header.labels {
		fmt.Fprintf(w, "_%s #%d \n", l, i+1)
	}
	for _, r := range t.Records {
		w.WriteString(strings.Join(r.values, " "))
		w.WriteString(" \n")
	}
	w.WriteString("\n")
}
