package store

import (
	"fmt"
	"regexp"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
)

// identifierPattern accepts lower snake case names that fit in a Postgres
// identifier (63 bytes).
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// CheckIdentifier validates a table or field name before it reaches DDL or
// DML. Names are still quoted with pgx.Identifier when used.
func CheckIdentifier(name string) error {
	if isSQLi, fingerprint := libinjection.IsSQLi(name); isSQLi {
		return fmt.Errorf("%w: %q matches injection pattern %s", apperrors.ErrInvalidIdentifier, name, fingerprint)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be lower snake case", apperrors.ErrInvalidIdentifier, name)
	}
	return nil
}

// CheckFieldName validates a destination field name.
func CheckFieldName(name string) error {
	if err := CheckIdentifier(name); err != nil {
		return err
	}
	if IsSystemColumn(name) {
		return fmt.Errorf("%w: %q is a reserved column", apperrors.ErrInvalidIdentifier, name)
	}
	return nil
}
