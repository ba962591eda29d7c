package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrEmptyCheckout = errors.New("no valid cart lines to checkout")
)
