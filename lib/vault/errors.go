package vault

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid vault config")
	ErrZeroInput          = errors.New("zero input")
	ErrInvalidRecipient   = errors.New("invalid recipient")
	ErrSlippageExceeded   = errors.New("amount below minimum")
	ErrZeroCross          = errors.New("deposit rounds to nothing at current composition")
	ErrSupplyCapExceeded  = errors.New("supply cap exceeded")
	ErrNotEligible        = errors.New("not eligible for rebalance")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrInvalidToken       = errors.New("token cannot be swept")
)
