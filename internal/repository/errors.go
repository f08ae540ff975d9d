// Package repository defines error values reused across repositories and
// the reservation service.  Each sentinel is an *apperror.AppError so
// handlers map it to a status without a lookup table; compare with
// errors.Is, which matches on the code.
package repository

import (
	"net/http"

	"github.com/iliyamo/ticket-sale-gate/internal/apperror"
)

var (
	// ErrNoAdjacentSeats is returned when no contiguous window of the
	// requested size and total price is free in the section.
	ErrNoAdjacentSeats = apperror.New(apperror.CodeNoAdjacentSeats, "no adjacent seats available for the requested quantity and price", http.StatusConflict)

	// ErrInsufficientSeats is returned when fewer free seats remain than requested.
	ErrInsufficientSeats = apperror.New(apperror.CodeInsufficientSeats, "not enough seats available", http.StatusConflict)

	// ErrHoldForbidden covers both an unknown hold and a hold owned by
	// another visitor, so callers cannot probe for foreign tokens.
	ErrHoldForbidden = apperror.New(apperror.CodeHoldForbidden, "hold not found or not owned by visitor", http.StatusForbidden)

	// ErrCheckoutNotAllowed is returned when the hold is expired, not
	// active, owned by someone else or lost seats before checkout.
	ErrCheckoutNotAllowed = apperror.New(apperror.CodeCheckoutNotAllowed, "hold cannot be checked out", http.StatusForbidden)

	ErrPaymentNotAllowed   = apperror.New(apperror.CodePaymentNotAllowed, "booking is not awaiting payment", http.StatusConflict)
	ErrBookingNotFound     = apperror.New(apperror.CodeBookingNotFound, "booking not found", http.StatusNotFound)
	ErrTicketsNotAvailable = apperror.New(apperror.CodeTicketsNotAvailable, "no tickets issued for booking", http.StatusNotFound)
	ErrEventNotFound       = apperror.New(apperror.CodeEventNotFound, "event not found", http.StatusNotFound)
)
