package scan

import (
	"fmt"
	"strconv"
	"strings"
)

// Checkpoints are the progress percentages emitted during a run, one per
// interval.
type Checkpoints []int

// DefaultCheckpoints matches the deep-scan page's progress bar.
var DefaultCheckpoints = Checkpoints{0, 15, 35, 55, 75, 90, 100}

// Validate requires a non-decreasing sequence within 0..100 that starts at
// 0 and ends at 100.
func (c Checkpoints) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidCheckpoints)
	}
	if c[0] != 0 {
		return fmt.Errorf("%w: first checkpoint is %d, want 0", ErrInvalidCheckpoints, c[0])
	}
	if last := c[len(c)-1]; last != 100 {
		return fmt.Errorf("%w: last checkpoint is %d, want 100", ErrInvalidCheckpoints, last)
	}
	for i, v := range c {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: checkpoint %d out of range: %d", ErrInvalidCheckpoints, i, v)
		}
		if i > 0 && v < c[i-1] {
			return fmt.Errorf("%w: checkpoint %d (%d) is below its predecessor (%d)", ErrInvalidCheckpoints, i, v, c[i-1])
		}
	}
	return nil
}

// String renders the checkpoints in the same comma-separated form
// ParseCheckpoints accepts.
func (c Checkpoints) String() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// ParseCheckpoints parses "0,15,35,100" and validates the result.
func ParseCheckpoints(s string) (Checkpoints, error) {
	var out Checkpoints
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidCheckpoints, part)
		}
		out = append(out, v)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
