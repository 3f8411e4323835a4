package ranksort

import (
	"errors"
	"fmt"
	"math"
)

// ErrOrderViolation means a record reached the writer with a larger count than
// the record before it.
var ErrOrderViolation = errors.New("ranked records are not in descending order")

// Validator remembers the last count it accepted and rejects any count above it.
// Each stage run builds its own; a Validator must not be shared between runs.
type Validator struct {
	last    int64
	checked int
}

// NewValidator returns a validator whose cursor starts at the largest count.
func NewValidator() *Validator {
	return &Validator{last: math.MaxInt64}
}

// Check accepts count if it does not exceed the previous one.
func (v *Validator) Check(count int64) error {
	if count > v.last {
		return fmt.Errorf("%w: record %d has count %d after %d",
			ErrOrderViolation, v.checked+1, count, v.last)
	}
	v.last = count
	v.checked++
	return nil
}

// Last returns the most recently accepted count.
func (v *Validator) Last() int64 { return v.last }

// Checked returns how many counts have been accepted.
func (v *Validator) Checked() int { return v.checked }
