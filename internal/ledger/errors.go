package ledger

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrSubjectNotFound = errors.New("subject not found")
	ErrStorageFailure  = errors.New("storage failure")
	// ErrDuplicateVote is returned by stores when a second vote for the same
	// (subject, voter) pair is rejected by the backing store.
	ErrDuplicateVote = errors.New("duplicate vote")
)

// Error kinds as they appear on the wire.
const (
	KindInvalidArgument = "InvalidArgument"
	KindSubjectNotFound = "SubjectNotFound"
	KindStorageFailure  = "StorageFailure"
)

// KindOf maps an error returned by the ledger (or its callers) to its wire kind.
// Unknown errors are reported as storage failures.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrSubjectNotFound):
		return KindSubjectNotFound
	default:
		return KindStorageFailure
	}
}
