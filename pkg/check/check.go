package check

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethpandaops/smokeoor/pkg/testcase"
)

// ErrCheckFailed is wrapped by every check failure.
var ErrCheckFailed = errors.New("check failed")

// Checker validates a response body.
type Checker interface {
	Check(body []byte) error
}

// Contains fails if the body does not contain Value.
type Contains struct {
	Value []byte
}

// Check tests for Value as a byte substring of body.
func (c *Contains) Check(body []byte) error {
	if !bytes.Contains(body, c.Value) {
		return fmt.Errorf("%w: body does not contain %q", ErrCheckFailed, c.Value)
	}

	return nil
}

// EndsWith fails if the body does not end with Value.
type EndsWith struct {
	Value []byte
}

// Check tests for Value as a byte suffix of body.
func (c *EndsWith) Check(body []byte) error {
	if !bytes.HasSuffix(body, c.Value) {
		return fmt.Errorf("%w: body does not end with %q", ErrCheckFailed, c.Value)
	}

	return nil
}

// Composed runs multiple checkers.
type Composed struct {
	checkers []Checker
}

// NewComposed creates a checker that runs every given checker.
func NewComposed(checkers ...Checker) *Composed {
	return &Composed{
		checkers: checkers,
	}
}

// Check runs every checker in order, without stopping at the first failure,
// and returns all failures joined. It returns nil when there are no checkers.
func (c *Composed) Check(body []byte) error {
	errs := make([]error, 0, len(c.checkers))

	for _, checker := range c.checkers {
		if err := checker.Check(body); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Len returns the number of checkers.
func (c *Composed) Len() int {
	return len(c.checkers)
}

// FromTestCase builds a composed checker for the checks of a test case.
// Ignored check types contribute nothing.
func FromTestCase(tc *testcase.TestCase) *Composed {
	checkers := make([]Checker, 0, len(tc.Checks))

	for _, c := range tc.Checks {
		switch c.Type {
		case testcase.CheckTypeContains:
			checkers = append(checkers, &Contains{Value: []byte(c.Value)})
		case testcase.CheckTypeEndsWith:
			checkers = append(checkers, &EndsWith{Value: []byte(c.Value)})
		}
	}

	return NewComposed(checkers...)
}
