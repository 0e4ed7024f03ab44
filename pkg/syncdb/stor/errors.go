package stor

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrIoFailure           = errors.New("metadata store unavailable")
)

func isSentinel(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConstraintViolation)
}

// translateError maps a gorm error onto the package sentinels. A unique index
// violation that survived the retries is a constraint violation; anything else
// that is not already a sentinel is reported as ErrIoFailure.
func translateError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	switch {
	case isSentinel(err):
		return fmt.Errorf("%s: %w", msg, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w: %s", msg, ErrConstraintViolation, err)
	default:
		return fmt.Errorf("%s: %w: %s", msg, ErrIoFailure, err)
	}
}
