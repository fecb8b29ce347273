// Package matrix holds per-utterance log-likelihood matrices and reads and
// writes them in Kaldi text form.
package matrix

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Matrix is a dense row-major float32 matrix, one row per frame.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// Utterance pairs a matrix with its archive key.
type Utterance struct {
	Key    string
	Matrix *Matrix
}

// New builds a matrix from rows. All rows must have the same length.
func New(rows [][]float32) (*Matrix, error) {
	m := &Matrix{Rows: len(rows)}
	if len(rows) == 0 {
		return m, nil
	}
	m.Cols = len(rows[0])
	m.Data = make([]float32, 0, m.Rows*m.Cols)
	for i, r := range rows {
		if len(r) != m.Cols {
			return nil, fmt.Errorf("matrix: row %d has %d columns, want %d", i, len(r), m.Cols)
		}
		m.Data = append(m.Data, r...)
	}
	return m, nil
}

// Row returns row i as a slice into Data.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// ReadFile reads all utterances in path. A bare matrix without a key is
// named after the file stem.
func ReadFile(path string) ([]Utterance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	utts, err := ReadText(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for i := range utts {
		if utts[i].Key == "" {
			utts[i].Key = stem
		}
	}
	return utts, nil
}

// ReadText parses a Kaldi text archive:
//
//	utt1  [
//	  0.1 0.2
//	  0.3 0.4 ]
//	utt2 [ 1 2 ]
//
// Input without brackets is read as a single unnamed matrix, one row per
// non-blank line.
func ReadText(r io.Reader) ([]Utterance, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		utts    []Utterance
		key     string
		rows    [][]float32
		inMat   bool
		bare    bool
		lineNum int
	)
	finish := func() error {
		m, err := New(rows)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
		utts = append(utts, Utterance{Key: key, Matrix: m})
		key, rows, inMat = "", nil, false
		return nil
	}

	for sc.Scan() {
		lineNum++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if !inMat && !bare {
			open := indexOf(fields, "[")
			switch {
			case open == 1:
				key = fields[0]
			case open == 0:
			case len(utts) == 0:
				bare = true
			default:
				return nil, fmt.Errorf("line %d: expected \"<key> [\"", lineNum)
			}
			if !bare {
				inMat = true
				fields = fields[open+1:]
			}
		}
		closed := false
		if n := len(fields); n > 0 && fields[n-1] == "]" {
			if bare {
				return nil, fmt.Errorf("line %d: unexpected \"]\"", lineNum)
			}
			closed = true
			fields = fields[:n-1]
		}
		if len(fields) > 0 {
			row, err := parseRow(fields)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			rows = append(rows, row)
		}
		if closed {
			if err := finish(); err != nil {
				return nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if inMat {
		return nil, errors.New("unterminated matrix")
	}
	if bare {
		if err := finish(); err != nil {
			return nil, err
		}
	}
	return utts, nil
}

// WriteText writes m in Kaldi text form under key.
func WriteText(w io.Writer, key string, m *Matrix) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s [", key)
	for i := 0; i < m.Rows; i++ {
		bw.WriteString("\n ")
		for _, v := range m.Row(i) {
			bw.WriteByte(' ')
			bw.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
	}
	bw.WriteString(" ]\n")
	return bw.Flush()
}

func parseRow(fields []string) ([]float32, error) {
	row := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", f)
		}
		row[i] = float32(v)
	}
	return row, nil
}

func indexOf(fields []string, s string) int {
	for i, f := range fields {
		if f == s {
			return i
		}
	}
	return -1
}
