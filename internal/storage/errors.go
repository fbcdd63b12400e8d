package storage

import "errors"

// Sentinel errors shared by all storage backends. Callers classify request
// outcomes with errors.Is against these; HTTP handlers map ErrNotFound to
// 404 and ErrConflict to 409.
var (
	// ErrNotFound indicates the requested entity does not exist (or has
	// been soft-deleted). Fatal to the request; never retried internally.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an optimistic-lock version mismatch or a
	// concurrent structural change. Recoverable: the caller re-fetches
	// and decides whether to retry.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrValidation indicates malformed caller input (bad patch field,
	// negative position, unknown column). Fatal until the caller
	// corrects the request.
	ErrValidation = errors.New("validation error")
)

// IsConflict reports whether err is an optimistic-lock conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// allowedPatchFields is the allow-list for UpdateIssue patches. Structural
// fields (column_id, column_position, version, issue_number) are never
// patchable; moves go through MoveIssue and numbering through the
// allocator.
var allowedPatchFields = map[string]bool{
	"title":       true,
	"description": true,
	"status":      true,
	"assignee":    true,
}

// ValidatePatch rejects empty patches and patches touching fields outside
// the allow-list.
func ValidatePatch(patch map[string]any) error {
	if len(patch) == 0 {
		return errors.New("empty patch")
	}
	for key := range patch {
		if !allowedPatchFields[key] {
			return errors.New("invalid field for update: " + key)
		}
	}
	return nil
}
