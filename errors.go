package jobstore

import "errors"

var (
	// Store errors.
	ErrNoStore          = errors.New("jobstore: no store configured")
	ErrStoreClosed      = errors.New("jobstore: store closed")
	ErrMigrationFailed  = errors.New("jobstore: migration failed")
	ErrStoreUnavailable = errors.New("jobstore: store unavailable")

	// ErrTransactionFailed is returned when a multi-step transition
	// (dead-lettering, requeue) could not commit. Nothing was changed.
	ErrTransactionFailed = errors.New("jobstore: transaction failed")

	// Not found errors.
	ErrJobNotFound = errors.New("jobstore: job not found")
	ErrDLQNotFound = errors.New("jobstore: dlq entry not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("jobstore: job already exists")

	// ErrInvalidRecord is returned when the store rejects a record that
	// violates a schema constraint. Repeating the write cannot succeed.
	ErrInvalidRecord = errors.New("jobstore: record rejected by store")

	// Lease errors.
	ErrLeaseResolved = errors.New("jobstore: lease already resolved")
	ErrLeaseLost     = errors.New("jobstore: lease lost")

	// Payload errors.
	ErrEncoding = errors.New("jobstore: payload encoding failed")

	// Runtime errors.
	ErrNoHandler = errors.New("jobstore: no handler registered for job type")
)

// IsRetryable reports whether err is a transient store failure after which
// the same operation may be attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrTransactionFailed)
}
