package domain

import "errors"

var (
	ErrEventNotFound      = errors.New("event_not_found")
	ErrTicketTypeNotFound = errors.New("ticket_type_not_found")
)
