package agreement

import (
	"errors"
)

var (
	ErrInvalidAddress     = errors.New("invalid address")
	ErrNoSession          = errors.New("no signer session")
	ErrNoBackend          = errors.New("ledger backend is not configured")
	ErrSubmissionRejected = errors.New("submission rejected by signer")
	ErrBytecodeMissing    = errors.New("agreement bytecode is missing, compile the contract first")
	ErrMissingField       = errors.New("required field is empty")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrStaleSnapshot      = errors.New("snapshot is older than the cached one")
	ErrUnknownAction      = errors.New("unknown action")
)

// ReadError is returned when the agreement details could not be fetched.
type ReadError struct {
	Cause error
}

func (e *ReadError) Error() string {
	return "read agreement: " + e.Cause.Error()
}

func (e *ReadError) Unwrap() error {
	return e.Cause
}

// RemoteRevert is returned when the ledger rejected a request. Reason is the
// revert message reported by the agreement, empty if it gave none.
type RemoteRevert struct {
	Reason string
	Cause  error
}

func (e *RemoteRevert) Error() string {
	if e.Reason == "" {
		return "remote revert"
	}
	return "remote revert: " + e.Reason
}

func (e *RemoteRevert) Unwrap() error {
	return e.Cause
}

// SubmissionError is a failure to hand a signed request to the ledger that is
// neither a signer refusal nor a revert.
type SubmissionError struct {
	Cause error
}

func (e *SubmissionError) Error() string {
	return "submit request: " + e.Cause.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}
