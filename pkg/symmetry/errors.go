package symmetry

import "fmt"

// InvalidSymmetryError is returned when a symmetry specification does not name a
// supported point group. It is reported before any particle is expanded.
type InvalidSymmetryError struct {
	// Spec is the specification as given by the user
	Spec string

	// Reason says which part of Spec was not understood
	Reason string
}

func (e *InvalidSymmetryError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid symmetry %q", e.Spec)
	}
	return fmt.Sprintf("invalid symmetry %q: %s", e.Spec, e.Reason)
}
