package fio

import (
	"errors"
	"time"
)

// ErrThrottled indicates the bank API rejected the request because of its
// one-request-per-30-seconds limit. Callers are expected to wait
// ThrottleBackoff and try again.
var ErrThrottled = errors.New("fio: throttled")

// ThrottleBackoff is the wait the bank API documentation mandates after a
// throttled request.
const ThrottleBackoff = 30 * time.Second

// Transaction is one bank account movement. ID is the bank's transaction
// id and the natural key; records are immutable and append-only. Amount is
// signed: only positive amounts are membership-pairing candidates.
type Transaction struct {
	ID      string
	Amount  int
	From    string
	Message string
	Date    time.Time
}
