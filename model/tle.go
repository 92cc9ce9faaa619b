package model

import (
	"fmt"
	"strings"
)

// TLE is one two-line element set plus its catalog name.
type TLE struct {
	Name  string
	Line1 string
	Line2 string
}

// minTLELineLen is the shortest element line the SGP4 library can parse.
// Standard TLE lines are 69 characters; trailing whitespace is tolerated.
const minTLELineLen = 69

// Validate rejects element sets the SGP4 library would misparse. It checks
// line numbering prefixes and minimum length, not checksums.
func (t TLE) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tle: empty name")
	}
	if err := validateLine(t.Line1, '1'); err != nil {
		return fmt.Errorf("tle %q: %w", t.Name, err)
	}
	if err := validateLine(t.Line2, '2'); err != nil {
		return fmt.Errorf("tle %q: %w", t.Name, err)
	}
	return nil
}

func validateLine(line string, num byte) error {
	if len(line) < minTLELineLen {
		return fmt.Errorf("line %c too short (%d chars)", num, len(line))
	}
	if line[0] != num || line[1] != ' ' {
		return fmt.Errorf("line %c has bad prefix %q", num, line[:2])
	}
	return nil
}
