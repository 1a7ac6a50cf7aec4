package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the order and loyalty packages.
var (
	// Reservation errors
	ErrOutOfStock = errors.New("out of stock")

	// Order lifecycle errors
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrInvalidOrder      = errors.New("invalid order")

	// Loyalty errors
	ErrLoyaltyDisabled    = errors.New("loyalty program disabled")
	ErrInsufficientPoints = errors.New("insufficient points")

	// Resource errors
	ErrNotFound = errors.New("resource not found")

	// Collaborator (store, queue) failures
	ErrDownstream = errors.New("downstream failure")
)

// OutOfStockError names the reservation keys that could not be acquired.
type OutOfStockError struct {
	Keys []string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: %s", strings.Join(e.Keys, ", "))
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// InvalidTransitionError carries the attempted (from, to) pair.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
