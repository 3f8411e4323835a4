package record

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// LineReader yields the lines of a text stream without a length limit. A
// trailing "\n" or "\r\n" is stripped and a final line without a newline is
// still returned. Only the current line is held in memory.
type LineReader struct {
	br   *bufio.Reader
	line string
	err  error
	done bool
}

// NewLineReader returns a LineReader over r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Scan advances to the next line. It returns false at the end of the input or
// after a read error; Err reports which.
func (lr *LineReader) Scan() bool {
	if lr.done {
		return false
	}
	s, err := lr.br.ReadString('\n')
	if err != nil {
		lr.done = true
		if !errors.Is(err, io.EOF) {
			lr.err = err
		}
		if s == "" {
			lr.line = ""
			return false
		}
	}
	s = strings.TrimSuffix(s, "\n")
	lr.line = strings.TrimSuffix(s, "\r")
	return true
}

// Text returns the line read by the last successful Scan.
func (lr *LineReader) Text() string { return lr.line }

// Err returns the first non-EOF read error.
func (lr *LineReader) Err() error { return lr.err }
