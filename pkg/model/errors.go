package model

import "errors"

var (
	// ErrNotFound record does not exist for the org
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate unique key conflict
	ErrDuplicate = errors.New("record already exists")
	// ErrDuplicateJob a non-terminal job already exists for the line item
	ErrDuplicateJob = errors.New("an active fulfillment job already exists for this line item")
	// ErrInvalidTransition the job status does not allow the requested operation
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrConflict a conditional update matched no row
	ErrConflict = errors.New("job status changed concurrently")
	// ErrInvalidRule rule configuration rejected at save time
	ErrInvalidRule = errors.New("invalid rule configuration")
	// ErrInvalidConfig fulfillment settings rejected at save time
	ErrInvalidConfig = errors.New("invalid fulfillment configuration")
	// ErrInvalidMapping sku mapping is incomplete
	ErrInvalidMapping = errors.New("invalid sku mapping")
)
