package catalog

import "errors"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFulfilled Status = "FULFILLED"
)

// ErrInsufficientStock aborts an order transaction whose quantity would take
// the product's stock below zero. It is a business-rule rejection, not a
// transient fault, and is never retried.
var ErrInsufficientStock = errors.New("insufficient stock")

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusFulfilled: true},
	StatusFulfilled: {},
}

// CanTransition reports whether from -> to is a legal status move. The only
// legal move is PENDING -> FULFILLED; fulfillment never reverses.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
