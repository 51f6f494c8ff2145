package sevenzip

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

const (
	inputSizeLabel   = "Add new data to archive:"
	archiveSizeLabel = "Archive size:"
)

var bytesPattern = regexp.MustCompile(`(\d+) bytes`)

// LineKind classifies a line of engine output.
type LineKind int

// Line kinds.
const (
	LineOther LineKind = iota
	LineProgress
	LineInputSize
	LineArchiveSize
)

// Line is a parsed line of engine output.
type Line struct {
	Kind    LineKind
	Percent int
	Bytes   int64
	Detail  string // text after the label of a size line
}

// ParseLine classifies a single line printed by 7z.
func ParseLine(raw string) Line {
	line := strings.TrimSpace(raw)

	if i := strings.Index(line, inputSizeLabel); i >= 0 {
		detail := strings.TrimSpace(line[i+len(inputSizeLabel):])
		return Line{Kind: LineInputSize, Bytes: parseBytes(detail), Detail: detail}
	}
	if i := strings.Index(line, archiveSizeLabel); i >= 0 {
		detail := strings.TrimSpace(line[i+len(archiveSizeLabel):])
		return Line{Kind: LineArchiveSize, Bytes: parseBytes(detail), Detail: detail}
	}
	if i := strings.Index(line, "%"); i > 0 {
		if pct, err := strconv.Atoi(strings.TrimSpace(line[:i])); err == nil && pct >= 0 && pct <= 100 {
			return Line{Kind: LineProgress, Percent: pct}
		}
	}
	return Line{Kind: LineOther}
}

// parseBytes returns the "N bytes" count of a size line, or -1.
func parseBytes(detail string) int64 {
	m := bytesPattern.FindStringSubmatch(detail)
	if m == nil {
		return -1
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// OutputParser accumulates the state of one engine run.
type OutputParser struct {
	before  int64
	after   int64
	percent int
}

// NewOutputParser creates a parser with no byte counts seen yet.
func NewOutputParser() *OutputParser {
	return &OutputParser{before: -1, after: -1}
}

// Feed parses one line. It returns the new percentage and true when the
// line advanced the progress.
func (p *OutputParser) Feed(raw string) (Line, bool) {
	line := ParseLine(raw)
	switch line.Kind {
	case LineInputSize:
		if line.Bytes >= 0 {
			p.before = line.Bytes
		}
	case LineArchiveSize:
		if line.Bytes >= 0 {
			p.after = line.Bytes
		}
	case LineProgress:
		if line.Percent > p.percent {
			p.percent = line.Percent
			return line, true
		}
	}
	return line, false
}

// Percent returns the highest percentage seen.
func (p *OutputParser) Percent() int {
	return p.percent
}

// Sizes returns the input and archive byte counts.
func (p *OutputParser) Sizes() (before, after int64, err error) {
	switch {
	case p.before < 0 && p.after < 0:
		return 0, 0, errors.New("engine output contained neither input nor archive size")
	case p.before < 0:
		return 0, 0, errors.New("engine output did not contain the input size")
	case p.after < 0:
		return 0, 0, errors.New("engine output did not contain the archive size")
	}
	return p.before, p.after, nil
}

// scanOutput splits engine output on newlines, carriage returns and the
// backspaces 7z uses to redraw its progress indicator.
func scanOutput(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n\b"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
