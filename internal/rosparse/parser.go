package rosparse

import (
	"regexp"
	"strconv"
	"strings"
)

// Record is one parsed entry from the device's line-oriented output: a
// mapping of key names to typed values. Values are bool for yes/no and
// true/false tokens, int64 or float64 for numeric tokens, and string
// otherwise. No fixed key set is ever assumed.
//
// Two synthetic keys may be present: ".index" (int64) holds the leading
// entry number of a numbered listing, and ".flags" (string) the flag letters
// printed after it.
type Record map[string]any

// entryHeader matches the start of a numbered entry, e.g.
// " 0  R name=ether1" or " 12   chain=input".
var entryHeader = regexp.MustCompile(`^\s*(\d+)\s+`)

// flagRun matches a run of flag letters between the entry number and the
// first key=value token, e.g. the "XR" in " 3 XR name=...".
var flagRun = regexp.MustCompile(`^([A-Za-z]{1,6})\s`)

// legend lines that carry no record data
var legendPrefixes = []string{"Flags:", "Columns:", "#"}

// Scanner walks device output one record at a time, in the manner of
// bufio.Scanner. The sequence is finite and restartable: construct a new
// Scanner over the same text to iterate again.
type Scanner struct {
	lines   []string
	pos     int
	current Record
}

// NewScanner creates a scanner over raw device output
func NewScanner(raw string) *Scanner {
	return &Scanner{
		lines: strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n"),
	}
}

// Next advances to the next record, returning false when the input is
// exhausted.
func (s *Scanner) Next() bool {
	s.current = nil

	// Skip blank and legend lines between records
	for s.pos < len(s.lines) && skippable(s.lines[s.pos]) {
		s.pos++
	}
	if s.pos >= len(s.lines) {
		return false
	}

	record := Record{}
	first := true

	for s.pos < len(s.lines) {
		line := s.lines[s.pos]

		if strings.TrimSpace(line) == "" {
			// Blank line ends the block; trailing blanks are
			// swallowed by the skip loop on the next call
			s.pos++
			break
		}
		if isLegend(line) {
			s.pos++
			break
		}
		if !first && entryHeader.MatchString(line) {
			// A new numbered entry starts the next record
			break
		}

		parseLine(line, record, first)
		first = false
		s.pos++
	}

	if len(record) == 0 {
		// A block of unparseable prose; move on to whatever follows
		return s.Next()
	}

	s.current = record
	return true
}

// Record returns the record produced by the last successful Next call
func (s *Scanner) Record() Record {
	return s.current
}

// Err reports any error encountered while scanning. Device output is plain
// text already in hand, so the only failure mode is running out of it, which
// Next reports by returning false; Err exists for bufio.Scanner-style loops.
func (s *Scanner) Err() error {
	return nil
}

// Parse materializes every record in the raw output. Callers that need only
// a single pass should prefer Scanner.
func Parse(raw string) []Record {
	var records []Record
	sc := NewScanner(raw)
	for sc.Next() {
		records = append(records, sc.Record())
	}
	return records
}

func skippable(line string) bool {
	return strings.TrimSpace(line) == "" || isLegend(line)
}

func isLegend(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, p := range legendPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// parseLine extracts key=value tokens from one line into the record. On a
// block's first line it also captures the entry number and flag letters.
func parseLine(line string, record Record, first bool) {
	rest := line

	if first {
		if m := entryHeader.FindStringSubmatch(rest); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				record[".index"] = n
			}
			rest = rest[len(m[0]):]
			if fm := flagRun.FindStringSubmatch(rest); fm != nil && !strings.Contains(fm[1], "=") {
				record[".flags"] = fm[1]
				rest = rest[len(fm[0]):]
			}
		}
	}

	for key, value := range tokenize(rest) {
		record[key] = typed(value)
	}
}

// tokenize splits a line into key=value pairs. Values may be double-quoted
// to contain whitespace, with backslash-escaped quotes and backslashes
// inside. Words without '=' are ignored.
func tokenize(line string) map[string]string {
	pairs := make(map[string]string)
	i := 0
	n := len(line)

	for i < n {
		// Skip whitespace
		for i < n && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= n {
			break
		}

		// Read key up to '=' or whitespace
		start := i
		for i < n && line[i] != '=' && line[i] != ' ' && line[i] != '\t' {
			i++
		}
		if i >= n || line[i] != '=' {
			// Bare word, not a pair
			continue
		}
		key := line[start:i]
		i++ // consume '='

		// Read value, honoring quotes
		var value strings.Builder
		if i < n && line[i] == '"' {
			i++
			for i < n {
				c := line[i]
				if c == '\\' && i+1 < n {
					value.WriteByte(line[i+1])
					i += 2
					continue
				}
				if c == '"' {
					i++
					break
				}
				value.WriteByte(c)
				i++
			}
		} else {
			for i < n && line[i] != ' ' && line[i] != '\t' {
				value.WriteByte(line[i])
				i++
			}
		}

		if key != "" {
			pairs[key] = value.String()
		}
	}

	return pairs
}

// typed converts a raw token into its natural Go type
func typed(value string) any {
	switch strings.ToLower(value) {
	case "yes", "true":
		return true
	case "no", "false":
		return false
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
