package model

import "errors"

// Sentinel errors for the request taxonomy. Callers wrap them with a reason,
// e.g. fmt.Errorf("%w: session %q", ErrNotFound, id), and transports map
// them to wire codes with Code.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrExpired           = errors.New("expired")
	ErrAlreadyReserved   = errors.New("already reserved")
	ErrBadRoute          = errors.New("bad route")
	ErrInvalidWindow     = errors.New("invalid window")
	ErrNegotiationFailed = errors.New("negotiation failed")
	ErrMalformedInput    = errors.New("malformed input")
)

// Wire codes reported to agents.
const (
	CodeOK                = "ok"
	CodeNotFound          = "not_found"
	CodeAlreadyExists     = "already_exists"
	CodeExpired           = "expired"
	CodeAlreadyReserved   = "already_reserved"
	CodeBadRoute          = "bad_route"
	CodeInvalidWindow     = "invalid_window"
	CodeNegotiationFailed = "negotiation_failed"
	CodeMalformedInput    = "malformed_input"
	CodeInternal          = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNotFound, CodeNotFound},
	{ErrAlreadyExists, CodeAlreadyExists},
	{ErrExpired, CodeExpired},
	{ErrAlreadyReserved, CodeAlreadyReserved},
	{ErrBadRoute, CodeBadRoute},
	{ErrInvalidWindow, CodeInvalidWindow},
	{ErrNegotiationFailed, CodeNegotiationFailed},
	{ErrMalformedInput, CodeMalformedInput},
}

// Code maps err to its wire code. A nil error is CodeOK; errors outside the
// taxonomy are CodeInternal.
func Code(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// FromCode is the inverse of Code, used by clients to rebuild a typed error
// from a response. Unknown codes map to nil.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
