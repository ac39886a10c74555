package correlator

import "errors"

// ErrTimeout is returned when a registered waiter receives no matching
// response within WaitTimeout.
var ErrTimeout = errors.New("correlator: timed out waiting for response")
