package symtab

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	if err := os.WriteFile(path, []byte("<eps> 0\nhello 1\nworld 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tab, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tab.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", tab.Len())
	}
	for i, want := range []string{"<eps>", "hello", "world"} {
		got, err := tab.Lookup(i)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("Lookup(%d) = %q, want %q", i, got, want)
		}
	}
	if m := tab.Mismatches(); len(m) != 0 {
		t.Errorf("Mismatches() = %v, want none", m)
	}
}

func TestLoadBadPath(t *testing.T) {
	_, err := Load("/nonexistent/words.txt")
	if err == nil {
		t.Fatal("Load should fail for nonexistent file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

func TestReadFormatError(t *testing.T) {
	cases := []struct {
		name  string
		input string
		line  string
	}{
		{"one token", "a 0\nb\nc 2\n", "b"},
		{"three tokens", "a 0\nb 1 extra\n", "b 1 extra"},
		{"keeps raw whitespace", "a 0\n  lonely  \n", "  lonely  "},
		{"tab separated ok then bad", "a\t0\nx y z\n", "x y z"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(c.input))
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("err = %v, want *FormatError", err)
			}
			if fe.Line != c.line {
				t.Errorf("Line = %q, want %q", fe.Line, c.line)
			}
		})
	}
}

func TestReadSkipsBlankLines(t *testing.T) {
	tab, err := Read(strings.NewReader("\na 0\n   \nb 1\n\n"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tab.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tab.Len())
	}
	if w, _ := tab.Lookup(1); w != "b" {
		t.Errorf("Lookup(1) = %q, want %q", w, "b")
	}
}

func TestLookupOutOfRange(t *testing.T) {
	tab, err := Read(strings.NewReader("a 0\nb 1\n"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for _, i := range []int{-1, 2, 100} {
		_, err := tab.Lookup(i)
		var oor *OutOfRangeError
		if !errors.As(err, &oor) {
			t.Fatalf("Lookup(%d) err = %v, want *OutOfRangeError", i, err)
		}
		if oor.Index != i || oor.Len != 2 {
			t.Errorf("OutOfRangeError = %+v", oor)
		}
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("errors.Is(ErrOutOfRange) = false for %v", err)
		}
	}
}

func TestLookupEmptyTable(t *testing.T) {
	tab, err := Read(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := tab.Lookup(0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Lookup(0) on empty table err = %v", err)
	}
}

func TestMismatchesReportsIDDrift(t *testing.T) {
	tab, err := Read(strings.NewReader("<eps> 0\nhello 1\nworld 7\nfoo bar\n"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got := tab.Mismatches()
	want := []IDMismatch{{Index: 2, Word: "world", ID: "7"}, {Index: 3, Word: "foo", ID: "bar"}}
	if len(got) != len(want) {
		t.Fatalf("Mismatches() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Mismatches()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	// index still comes from line order
	if w, _ := tab.Lookup(2); w != "world" {
		t.Errorf("Lookup(2) = %q", w)
	}
}

func TestEntry(t *testing.T) {
	tab, _ := Read(strings.NewReader("a 0\nb 1\n"))
	e, err := tab.Entry(1)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if e.Word != "b" || e.ID != "1" {
		t.Errorf("Entry(1) = %+v", e)
	}
	if _, err := tab.Entry(2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Entry(2) err = %v", err)
	}
}
