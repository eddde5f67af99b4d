package domain

import "errors"

var (
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrEmptyCart         = errors.New("empty_cart")
	ErrTicketTypeInvalid = errors.New("ticket_type_invalid")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrMixedEvents       = errors.New("mixed_events")
)
