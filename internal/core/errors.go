package core

// Error codes surfaced through the ws protocol. Admission failures reject
// the handshake with plain HTTP statuses instead.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodePersistenceFailed = "persistence_failed"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewCoreError builds a coded domain error.
func NewCoreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
