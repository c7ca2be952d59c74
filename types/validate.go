package types

import (
	"fmt"
	"regexp"
)

// nameRE restricts VM and template names to a character set that can never
// traverse out of a managed directory.
var nameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,62}$`)

// ValidateName rejects names outside the restricted character set.
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("name %q: %w", name, ErrInvalid)
	}
	return nil
}
