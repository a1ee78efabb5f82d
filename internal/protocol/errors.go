package protocol

import "fmt"

// Error is a protocol-level rejection sent back to the offending sender as a
// wire `error` message. The connection stays open; admission failures are the
// only fatal class and never reach this type.
type Error struct {
	Code    int
	Reason  string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Wire converts the error to its on-wire form.
func (e *Error) Wire() WireError {
	return WireError{Type: KindError, Code: e.Code, Reason: e.Reason, Message: e.Message}
}

// Numeric codes follow the service's historical convention: 1400 for
// malformed input, 1404 for missing referents, 1409 for conflicts.
var (
	ErrValidation      = &Error{Code: 1400, Reason: "validation_error"}
	ErrUnknownType     = &Error{Code: 1400, Reason: "unknown_type"}
	ErrNotRegistered   = &Error{Code: 1409, Reason: "not_registered"}
	ErrDuplicateID     = &Error{Code: 1409, Reason: "duplicate_id"}
	ErrInvalidRole     = &Error{Code: 1400, Reason: "invalid_role"}
	ErrPeerNotFound    = &Error{Code: 1404, Reason: "peer_not_found"}
	ErrPeerBusy        = &Error{Code: 1409, Reason: "peer_busy"}
	ErrSelfPairing     = &Error{Code: 1409, Reason: "self_pairing"}
	ErrSessionNotFound = &Error{Code: 1404, Reason: "session_not_found"}
	ErrNotParticipant  = &Error{Code: 1409, Reason: "not_participant"}
	ErrBadSessionRef   = &Error{Code: 1404, Reason: "bad_session_ref"}
	ErrPeerGone        = &Error{Code: 1404, Reason: "peer_gone"}
	ErrRelayFailed     = &Error{Code: 1409, Reason: "relay_failed"}
)

// WithMessage returns a copy carrying detail text. The original sentinels
// stay comparable with errors.Is through Is below.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Reason: e.Reason, Message: msg}
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}
