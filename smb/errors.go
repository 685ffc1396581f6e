package smb

import (
	"fmt"

	"github.com/ericblavier/go-smb3/smb/encoder"
)

// The error kinds below each wrap an underlying cause so callers can
// errors.As/errors.Is against either the concrete type or, where one
// exists, the cause itself — the same mapping style os.ErrExist /
// os.ErrNotExist / os.ErrPermission use over a raw syscall.Errno.

// TransportError wraps a failure from the underlying byte stream: a
// dial failure, a read/write error, or a connection reset.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("smb: transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// FramingError reports a malformed or truncated message at the
// transport-framing layer (bad length prefix, short read).
type FramingError struct {
	Err error
}

func (e *FramingError) Error() string { return fmt.Sprintf("smb: framing: %v", e.Err) }
func (e *FramingError) Unwrap() error { return e.Err }

// ProtocolViolationError reports a well-framed message that nonetheless
// violates MS-SMB2 (bad structure size, offset out of bounds, a
// negotiate context the client didn't offer).
type ProtocolViolationError struct {
	Detail string
	Err    error
}

func (e *ProtocolViolationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("smb: protocol violation: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("smb: protocol violation: %s", e.Detail)
}
func (e *ProtocolViolationError) Unwrap() error { return e.Err }

// CancelledError reports an operation cancelled by its context or by an
// explicit Cancel call racing the response.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string { return fmt.Sprintf("smb: cancelled: %v", e.Err) }
func (e *CancelledError) Unwrap() error  { return e.Err }

// ServerStatusError carries a non-STATUS_SUCCESS NT_STATUS the server
// returned for an otherwise well-formed request, per spec §7.
type ServerStatusError struct {
	Op     string
	Status encoder.NtStatus
}

func (e *ServerStatusError) Error() string {
	return fmt.Sprintf("smb: %s failed: %s", e.Op, e.Status.String())
}

// Is lets callers write errors.Is(err, smb.ErrAccessDenied) and similar
// without needing the exact Op that produced the status.
func (e *ServerStatusError) Is(target error) bool {
	other, ok := target.(*ServerStatusError)
	if !ok {
		return false
	}
	return e.Status == other.Status
}

// Sentinel ServerStatusErrors for the statuses callers most often branch
// on; compare with errors.Is(err, smb.ErrAccessDenied), not ==, since the
// Op field differs per call site.
var (
	ErrAccessDenied       = &ServerStatusError{Status: encoder.StatusAccessDenied}
	ErrObjectNameNotFound = &ServerStatusError{Status: encoder.StatusObjectNameNotFound}
	ErrObjectNameCollision = &ServerStatusError{Status: encoder.StatusObjectNameCollision}
)

// AuthFailureError wraps a failure from the SESSION_SETUP state machine
// or its AuthProvider (bad credentials, an unsupported mechanism, a
// Kerberos ticket fetch failure).
type AuthFailureError struct {
	Err error
}

func (e *AuthFailureError) Error() string { return fmt.Sprintf("smb: authentication failed: %v", e.Err) }
func (e *AuthFailureError) Unwrap() error { return e.Err }

// ConfigurationError reports Options that can't be used as given (no
// Host), or a share that fails Options.RequireEncryption.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("smb: configuration: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("smb: configuration: %s is required", e.Field)
}
func (e *ConfigurationError) Unwrap() error { return e.Err }
