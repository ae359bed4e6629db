package snapshot

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoArtifacts is returned when a case asks for verification without naming
// a single artifact
var ErrNoArtifacts = errors.New("no artifacts to verify")

// MissingError means the golden snapshot does not exist. It is never created
// outside record mode.
type MissingError struct {
	Key Key
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("snapshot %s is missing (run with --update-snapshots to record it)", e.Key)
}

// MismatchError carries both sides of a failed comparison
type MismatchError struct {
	Key      Key
	Diff     string
	Expected []byte
	Actual   []byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("snapshot %s does not match:\n%s", e.Key, e.Diff)
}
