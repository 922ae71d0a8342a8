package storage

import "errors"

var (
	// ErrNotFound is returned when a product, variation, order or user is absent.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is returned when a decrement would take a quantity below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientBalance is returned when a coin debit exceeds the user balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrConflict is returned by conditional transitions whose precondition
	// no longer holds (e.g. deciding an order that is already decided).
	ErrConflict = errors.New("state conflict")
	// ErrUnavailable marks transient infrastructure faults worth a bounded retry.
	ErrUnavailable = errors.New("storage unavailable")
)
