// Package record defines the line formats exchanged between the castrank stages
// and the parsers for each of them.
//
// Source lines are tolerated when malformed (they are dirty input data), while
// intermediate lines are not: the intermediate file is written by castrank itself,
// so a malformed line there means the pipeline is broken.
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates fields on every line castrank reads or writes.
const Delimiter = "\t"

// SourceFields is the field count of a valid source record.
const SourceFields = 3

// RankedFields is the field count of a valid intermediate record.
const RankedFields = 2

// ErrMalformedIntermediate is returned when a line of the intermediate file does
// not have exactly two fields or its count is not an integer.
var ErrMalformedIntermediate = errors.New("malformed intermediate record")

// Increment is one vote for a grouping key, emitted once per valid source line.
type Increment struct {
	Key    string
	Amount int64
}

// Count is the aggregated total for one distinct key.
type Count struct {
	Key   string
	Total int64
}

// Ranked is a (count, key) pair as written to and read back from the
// intermediate file.
type Ranked struct {
	Count int64
	Key   string
}

// Ranked converts an aggregated count into its on-disk (count, key) form.
func (c Count) Ranked() Ranked {
	return Ranked{Count: c.Total, Key: c.Key}
}

// ParseSource parses a source line. Lines that do not split into exactly three
// fields are reported with ok == false and are meant to be skipped.
func ParseSource(line string) (inc Increment, ok bool) {
	fields := strings.Split(trimEOL(line), Delimiter)
	if len(fields) != SourceFields {
		return Increment{}, false
	}
	return Increment{Key: fields[0], Amount: 1}, true
}

// ParseRanked parses a line of the intermediate file.
func ParseRanked(line string) (Ranked, error) {
	fields := strings.Split(trimEOL(line), Delimiter)
	if len(fields) != RankedFields {
		return Ranked{}, fmt.Errorf("%w: want %d fields, got %d in %q",
			ErrMalformedIntermediate, RankedFields, len(fields), line)
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Ranked{}, fmt.Errorf("%w: count %q is not an integer in %q",
			ErrMalformedIntermediate, fields[0], line)
	}
	return Ranked{Count: n, Key: fields[1]}, nil
}

// FormatRanked renders r as "<count>\t<key>" without a trailing newline.
func FormatRanked(r Ranked) string {
	return strconv.FormatInt(r.Count, 10) + Delimiter + r.Key
}

func trimEOL(line string) string {
	return strings.TrimSuffix(line, "\r")
}
