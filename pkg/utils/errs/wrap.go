package errs

import "fmt"

// Wrap chains ext under the base sentinel so both match errors.Is.
func Wrap(base, ext error) error {
	return fmt.Errorf("%w: %w", base, ext)
}

// Wrapf annotates the base sentinel with a formatted detail.
func Wrapf(base error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}
