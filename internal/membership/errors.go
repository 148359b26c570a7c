// internal/membership/errors.go
package membership

import "errors"

var (
	ErrNotFound = errors.New("member not found")
	// ErrConflict is returned when the member changed since it was read.
	ErrConflict             = errors.New("member was modified concurrently")
	ErrValidation           = errors.New("invalid member")
	ErrAppOriginatedPayment = errors.New("payment comes from the payment processor and cannot be edited")
	ErrInvalidTransition    = errors.New("transition not allowed in current status")
	ErrConfirmationRequired = errors.New("operation requires explicit confirmation")
)
