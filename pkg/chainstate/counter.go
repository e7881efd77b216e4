package chainstate

import "fmt"

// DaCounter is a monotonically non-decreasing counter (e.g. a snark-account sequence
// number). Increment-only by design: any attempt to move it backward is a
// programmer error, reported rather than silently clamped.
type DaCounter struct {
	base    uint64
	current uint64
}

// NewDaCounter creates a counter initialized to value.
func NewDaCounter(value uint64) *DaCounter {
	return &DaCounter{base: value, current: value}
}

// Value returns the counter's current value.
func (c *DaCounter) Value() uint64 { return c.current }

// Increment advances the counter by delta.
func (c *DaCounter) Increment(delta uint64) {
	c.current += delta
}

// Advance sets the counter to newValue, erroring if newValue would move it backward.
func (c *DaCounter) Advance(newValue uint64) error {
	if newValue < c.current {
		return fmt.Errorf("chainstate: counter cannot move backward from %d to %d", c.current, newValue)
	}
	c.current = newValue
	return nil
}

// Changed reports whether the counter advanced since the last Commit.
func (c *DaCounter) Changed() bool { return c.current != c.base }

// Diff returns the current value and true if it advanced, or zero and false
// otherwise.
func (c *DaCounter) Diff() (uint64, bool) {
	if !c.Changed() {
		return 0, false
	}
	return c.current, true
}

// Commit accepts the current value as the new base.
func (c *DaCounter) Commit() {
	c.base = c.current
}
