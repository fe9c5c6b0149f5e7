package domain

import "errors"

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
	ErrInvalidBookingNo    = errors.New("invalid_booking_no")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrNegativeAmount      = errors.New("negative_amount")
	ErrInvalidDate         = errors.New("invalid_date")
	ErrInvalidField        = errors.New("invalid_field")
	ErrUnknownField        = errors.New("unknown_field")
	ErrReadOnlyField       = errors.New("read_only_field")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrRecordInvalid       = errors.New("invalid_record")
	ErrUpdateInFlight      = errors.New("update_in_flight")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
)
