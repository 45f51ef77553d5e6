package types

import (
	"fmt"
	"net/http"
)

type Kind int

const (
	KindEmptyRequest Kind = iota + 1
	KindNoDatasetSelected
	KindNoStationSpecified
	KindInvalidLastN
	KindIncompleteTimeRange
	KindInvalidTimeRange
	KindInvalidStationName
	KindQueryPreparationFailed
	KindSchemaUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindEmptyRequest:
		return "EmptyRequest"
	case KindNoDatasetSelected:
		return "NoDatasetSelected"
	case KindNoStationSpecified:
		return "NoStationSpecified"
	case KindInvalidLastN:
		return "InvalidLastN"
	case KindIncompleteTimeRange:
		return "IncompleteTimeRange"
	case KindInvalidTimeRange:
		return "InvalidTimeRange"
	case KindInvalidStationName:
		return "InvalidStationName"
	case KindQueryPreparationFailed:
		return "QueryPreparationFailed"
	case KindSchemaUnavailable:
		return "SchemaUnavailable"
	default:
		return "Unknown"
	}
}

// StatusCode maps the kind onto the HTTP status reported to clients.
func (k Kind) StatusCode() int {
	switch k {
	case KindEmptyRequest, KindNoDatasetSelected, KindNoStationSpecified:
		return http.StatusBadRequest
	case KindInvalidLastN, KindIncompleteTimeRange, KindInvalidTimeRange, KindInvalidStationName:
		return http.StatusUnprocessableEntity
	case KindQueryPreparationFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RequestError is a failure that ends the request. Message is shown to the
// client; Err is the internal cause, logged but never sent.
type RequestError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) StatusCode() int { return e.Kind.StatusCode() }

func NewRequestError(kind Kind, format string, args ...any) *RequestError {
	return &RequestError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapRequestError attaches an internal cause.
func WrapRequestError(kind Kind, err error, format string, args ...any) *RequestError {
	return &RequestError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
