package storage

import (
	"fmt"

	"github.com/clinicsched/clinicsched/libs/db"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/model"
	"github.com/google/uuid"
)

// IsConflict reports a hit on the appointments overlap exclusion constraint.
func IsConflict(err error) bool {
	return db.IsExclusionViolation(err)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
}

// validID filters ids that cannot be a stored UUID, so lookups report
// not-found instead of a Postgres cast error.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

// classify maps constraint violations on writes to model sentinels.
func classify(kind string, err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: userName already taken", kind, model.ErrConflict)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: referenced by or referencing a missing record", kind, model.ErrConflict)
	default:
		return err
	}
}
