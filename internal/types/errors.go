package types

import "errors"

// Error is a request failure that resolves to a status code and a body token.
type Error struct {
	Token  string
	Status int
}

func (e *Error) Error() string {
	return e.Token
}

var (
	ErrBadRequest       = &Error{Token: "bad_request", Status: 500}
	ErrBadHeader        = &Error{Token: "bad_http_header", Status: 500}
	ErrBadProtocol      = &Error{Token: "bad_http_protocol", Status: 500}
	ErrHeaderTooLarge   = &Error{Token: "header_too_large", Status: 500}
	ErrMethodNotAllowed = &Error{Token: "bad_method", Status: 501}
	ErrBadPath          = &Error{Token: "bad_path", Status: 400}
	ErrNotFound         = &Error{Token: "not_found", Status: 404}
)

// StatusOf maps err to the status code and body token sent to the client.
// Errors that are not an *Error are reported as a 500 bad_request.
func StatusOf(err error) (int, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Status, e.Token
	}
	return ErrBadRequest.Status, ErrBadRequest.Token
}
