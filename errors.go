package futex

import "errors"

var (
	// ErrInvalid matches every invalid-argument error returned by the Table.
	ErrInvalid = errors.New("futex: invalid argument")

	// ErrInterruptContext is returned when Wait, Wake or Requeue is called
	// from interrupt context. Bucket mutexes may only be taken by tasks.
	ErrInterruptContext = errors.New("futex: called from interrupt context")

	// ErrValueMismatch means the lock word no longer held the expected value.
	// The caller should reload the word and retry its own compare-and-swap.
	ErrValueMismatch = errors.New("futex: value changed")

	// ErrTimeout means Wait returned because its timeout expired.
	ErrTimeout = errors.New("futex: timed out")

	// ErrNotFound means no task waits on the key.
	ErrNotFound = errors.New("futex: key not found")

	// ErrLockFailed means a bucket mutex could not be acquired.
	ErrLockFailed = errors.New("futex: bucket lock failed")

	// ErrBusy is returned by Close while waiters remain.
	ErrBusy = errors.New("futex: table has waiters")
)

// Invalid-argument errors. All of them satisfy errors.Is(err, ErrInvalid).
var (
	ErrBadFlags    error = argError("unsupported flags")
	ErrUnaligned   error = argError("address not word aligned")
	ErrOutOfRange  error = argError("address outside user window")
	ErrFault       error = argError("address not mapped")
	ErrZeroTimeout error = argError("zero timeout")
	ErrSameAddress error = argError("requeue to the same address")
	ErrBadTask     error = argError("unknown task")
	ErrTaskBusy    error = argError("task already waiting")
	ErrBadCount    error = argError("negative count")
)

type argError string

func (e argError) Error() string { return "futex: " + string(e) }

func (e argError) Is(target error) bool { return target == ErrInvalid }
