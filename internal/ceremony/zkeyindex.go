package ceremony

import (
	"fmt"
	"strconv"
)

// FinalZkeyToken is used in place of a numeric index for the ceremony-closing
// contribution of a circuit.
const FinalZkeyToken = "final"

// defaultGenesisIndexWidth is used for circuits that don't set an explicit
// GenesisIndexWidth (e.g. seeded by older tooling or tests).
const defaultGenesisIndexWidth = 5

// IndexWidth returns the zero-padded width to use for this circuit's
// zkeyIndex values, falling back to defaultGenesisIndexWidth.
func (c *Circuit) IndexWidth() int {
	if c.GenesisIndexWidth <= 0 {
		return defaultGenesisIndexWidth
	}
	return c.GenesisIndexWidth
}

// FormatZkeyIndex zero-pads n to width digits, matching the teacher's
// fixed-width contribution file naming (pkg/setup.nextContribPath used
// "%04d"; here width is the genesis index length, per spec invariant I5).
func FormatZkeyIndex(n, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

// ParseZkeyIndex parses a zero-padded index back to an integer. Returns an
// error for the literal "final" token; callers must check IsFinal first.
func ParseZkeyIndex(s string) (int, error) {
	if s == FinalZkeyToken {
		return 0, fmt.Errorf("zkeyindex: %q is the final token, not numeric", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("zkeyindex: parse %q: %w", s, err)
	}
	return n, nil
}
