package vision

import (
	"math"
	"strconv"
	"strings"
)

// ParseResponse parses a model response in the format name | quantity | notes,
// one item per line.
func ParseResponse(raw string) []Draft {
	drafts := make([]Draft, 0)
	for _, line := range strings.Split(raw, "\n") {
		if d := ParseLine(line); d != nil {
			drafts = append(drafts, *d)
		}
	}
	return drafts
}

// ParseLine parses a single response line. Lines without a pipe separator
// are treated as preamble and yield nil.
func ParseLine(line string) *Draft {
	line = strings.TrimSpace(line)
	if line == "" || !strings.Contains(line, "|") {
		return nil
	}
	parts := strings.Split(line, "|")
	name := strings.TrimSpace(strings.TrimLeft(parts[0], "-*• "))
	if name == "" {
		return nil
	}
	d := &Draft{Name: name, Quantity: 1}
	if len(parts) >= 2 {
		d.Quantity, d.Unit = parseQuantity(strings.TrimSpace(parts[1]))
	}
	if len(parts) >= 3 {
		d.Notes = strings.TrimSpace(strings.Join(parts[2:], "|"))
	}
	return d
}

// parseQuantity splits "2 liters" into 2 and "liters". Text without a
// leading number counts as one; fractions round up.
func parseQuantity(s string) (int, string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 1, ""
	}
	n, err := strconv.ParseFloat(strings.TrimPrefix(fields[0], "~"), 64)
	if err != nil || n < 0 {
		return 1, s
	}
	return int(math.Ceil(n)), strings.Join(fields[1:], " ")
}
