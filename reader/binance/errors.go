package binance

import (
	"errors"
	"fmt"
)

// Kind classifies why a fetch failed.
type Kind int

const (
	// TransportError covers network and connection failures, including an
	// expired request deadline.
	TransportError Kind = iota + 1
	// DecodeError means the body did not have the expected JSON shape.
	DecodeError
	// DataUnavailable means the response was well formed but the exchange had
	// nothing usable for the pair.
	DataUnavailable
)

func (k Kind) String() string {
	switch k {
	case TransportError:
		return "transport error"
	case DecodeError:
		return "decode error"
	case DataUnavailable:
		return "data unavailable"
	default:
		return "unknown error"
	}
}

var (
	ErrTransport       = errors.New("transport error")
	ErrDecode          = errors.New("decode error")
	ErrDataUnavailable = errors.New("data unavailable")

	ErrInvalidDepth = errors.New("depth must be at least 1")
	ErrInvalidLimit = errors.New("trade limit must be at least 1")
)

// FetchError is returned by every Client fetch.
type FetchError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is match a FetchError against the kind sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == TransportError
	case ErrDecode:
		return e.Kind == DecodeError
	case ErrDataUnavailable:
		return e.Kind == DataUnavailable
	}
	return false
}

func transportErr(op string, err error) error {
	return &FetchError{Kind: TransportError, Op: op, Err: err}
}

func decodeErr(op string, err error) error {
	return &FetchError{Kind: DecodeError, Op: op, Err: err}
}

func unavailableErr(op string, err error) error {
	return &FetchError{Kind: DataUnavailable, Op: op, Err: err}
}
