// Package symtab loads word symbol tables and resolves engine output indices
// to words.
//
// A word list has one entry per line, two whitespace-separated tokens:
//
//	<eps> 0
//	hello 1
//	world 2
//
// The runtime index of a word is its position among non-blank lines. The
// second token is kept but never used for indexing.
package symtab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrOutOfRange matches every *OutOfRangeError via errors.Is.
var ErrOutOfRange = errors.New("symtab: index out of range")

// FormatError reports a word-list line that does not have exactly two tokens.
type FormatError struct {
	Line string // raw line text
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("symtab: format error: %q", e.Line)
}

// OutOfRangeError reports a lookup outside [0, Len).
type OutOfRangeError struct {
	Index int
	Len   int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("symtab: index %d out of range [0, %d)", e.Index, e.Len)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// Entry is one word-list line.
type Entry struct {
	Word string
	ID   string // second token, as written
}

// IDMismatch records an entry whose second token disagrees with its line position.
type IDMismatch struct {
	Index int
	Word  string
	ID    string
}

// Table maps indices to words. It is immutable after loading.
type Table struct {
	entries    []Entry
	mismatches []IDMismatch
}

// Load reads a word list from path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("symtab: open %q: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a word list from r.
func Read(r io.Reader) (*Table, error) {
	t := &Table{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		raw := sc.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		tokens := strings.Fields(raw)
		if len(tokens) != 2 {
			return nil, &FormatError{Line: raw}
		}
		idx := len(t.entries)
		e := Entry{Word: tokens[0], ID: tokens[1]}
		if e.ID != strconv.Itoa(idx) {
			t.mismatches = append(t.mismatches, IDMismatch{Index: idx, Word: e.Word, ID: e.ID})
		}
		t.entries = append(t.entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("symtab: read: %w", err)
	}
	return t, nil
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Lookup returns the word at index i.
func (t *Table) Lookup(i int) (string, error) {
	if i < 0 || i >= len(t.entries) {
		return "", &OutOfRangeError{Index: i, Len: len(t.entries)}
	}
	return t.entries[i].Word, nil
}

// Entry returns the full entry at index i.
func (t *Table) Entry(i int) (Entry, error) {
	if i < 0 || i >= len(t.entries) {
		return Entry{}, &OutOfRangeError{Index: i, Len: len(t.entries)}
	}
	return t.entries[i], nil
}

// Mismatches returns the entries whose second token is not their index.
func (t *Table) Mismatches() []IDMismatch {
	out := make([]IDMismatch, len(t.mismatches))
	copy(out, t.mismatches)
	return out
}
