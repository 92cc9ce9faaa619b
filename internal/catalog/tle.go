// Package catalog supplies the satellite catalog: TLE parsing, HTTP
// retrieval from Celestrak group endpoints, a file cache, a hot-swappable
// snapshot store, and a background refresh loop.
package catalog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/signalsfoundry/mission-pnt/model"
)

// ErrNoEntries is returned when a catalog text yields no usable element sets.
var ErrNoEntries = errors.New("catalog: no valid TLE entries")

// ParseTLEs reads concatenated 3-line element sets (name, line 1, line 2).
// Blank lines are ignored. Malformed groups are skipped by resyncing one
// line at a time; the returned count says how many lines were discarded
// that way. At least one valid entry is required.
func ParseTLEs(r io.Reader) ([]model.TLE, int, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("catalog: read TLE text: %w", err)
	}

	var entries []model.TLE
	rejected := 0
	i := 0
	for i+2 < len(lines) {
		t := model.TLE{
			Name:  strings.TrimSpace(lines[i]),
			Line1: lines[i+1],
			Line2: lines[i+2],
		}
		if err := t.Validate(); err != nil {
			rejected++
			i++
			continue
		}
		entries = append(entries, t)
		i += 3
	}
	if leftover := len(lines) - i; leftover > 0 {
		rejected += leftover
	}

	if len(entries) == 0 {
		return nil, rejected, ErrNoEntries
	}
	return entries, rejected, nil
}

// RenderTLEs is the inverse of ParseTLEs, used to write the cache file.
func RenderTLEs(entries []model.TLE) []byte {
	var buf bytes.Buffer
	for _, t := range entries {
		buf.WriteString(t.Name)
		buf.WriteByte('\n')
		buf.WriteString(t.Line1)
		buf.WriteByte('\n')
		buf.WriteString(t.Line2)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
