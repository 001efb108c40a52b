package analysis

import (
	"errors"
	"fmt"
)

// ErrNotAnalyzable marks pages or version pairs that cannot or need not be
// compared: too few versions, unfetchable bodies, unsupported media. These
// are skipped, not failed.
var ErrNotAnalyzable = errors.New("not analyzable")

// ErrNoChange is the benign sub-case of ErrNotAnalyzable: the boundary
// versions are identical, so there is nothing to report.
// errors.Is(ErrNoChange, ErrNotAnalyzable) holds.
var ErrNoChange = fmt.Errorf("%w: no change", ErrNotAnalyzable)

func noChange(reason string) error {
	return fmt.Errorf("%w: %s", ErrNoChange, reason)
}

func notAnalyzable(reason string) error {
	return fmt.Errorf("%w: %s", ErrNotAnalyzable, reason)
}
