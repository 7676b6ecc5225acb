package protocol

import "errors"

var (
	ErrMalformedHeader    = errors.New("protocol: malformed header")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrTruncated          = errors.New("protocol: truncated data")
	ErrInvalidLength      = errors.New("protocol: invalid length")
	ErrUnexpectedMessage  = errors.New("protocol: unexpected message type")
)
