package ticket_api

import (
	"errors"
	"net/http"

	"ms-admission/internal/checkin"
	"ms-admission/internal/models"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{models.ErrTicketNotFound, http.StatusNotFound, "ticket_not_found"},
	{models.ErrShowNotFound, http.StatusNotFound, "show_not_found"},
	{models.ErrSeatTypeNotFound, http.StatusNotFound, "seat_type_not_found"},

	{errShowExists, http.StatusConflict, "show_exists"},
	{errSeatTypeExists, http.StatusConflict, "seat_type_exists"},
	{models.ErrSeatUnavailable, http.StatusConflict, "seat_unavailable"},
	{models.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
	{models.ErrShowNotSchedulable, http.StatusConflict, "show_not_schedulable"},
	{models.ErrAlreadyCheckedIn, http.StatusConflict, "already_checked_in"},
	{models.ErrTicketCancelled, http.StatusConflict, "ticket_cancelled"},
	{models.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},

	{models.ErrBuyerMismatch, http.StatusForbidden, "buyer_mismatch"},
	{models.ErrUnauthorizedStaff, http.StatusForbidden, "unauthorized_staff"},

	{checkin.ErrInvalidSignature, http.StatusUnprocessableEntity, "invalid_signature"},
	{checkin.ErrMalformedMessage, http.StatusUnprocessableEntity, "malformed_message"},
	{checkin.ErrUnsupportedFormat, http.StatusUnprocessableEntity, "unsupported_format"},
	{checkin.ErrInvalidIdentity, http.StatusUnprocessableEntity, "invalid_identity"},
	{models.ErrNonceRejected, http.StatusUnprocessableEntity, "nonce_rejected"},
	{models.ErrPriceMismatch, http.StatusUnprocessableEntity, "price_mismatch"},
}

func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
