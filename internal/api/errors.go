package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/mtprompt/pkg/mpt"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps a compose failure to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, mpt.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, mpt.ErrIndexOutOfRange):
		return http.StatusBadRequest, "index_out_of_range_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
