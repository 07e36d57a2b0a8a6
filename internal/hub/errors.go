package hub

// Stable error codes surfaced to clients and recorded in metrics.
const (
	CodeAuthFailed             = "AUTH_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeNotAuthor              = "NOT_AUTHOR"
	CodePersistenceUnavailable = "PERSISTENCE_UNAVAILABLE"
	CodeTargetUnreachable      = "TARGET_UNREACHABLE"
	CodeInvalidFrame           = "INVALID_FRAME"
	CodeBackpressure           = "BACKPRESSURE"
)

// opError maps operation-level failures to error frames. Non-fatal errors
// are reported to the initiating connection and the stream continues; fatal
// ones tear the connection down.
type opError struct {
	code  string
	msg   string
	fatal bool
}

func (e *opError) Error() string {
	return e.msg
}

func errNotFound(msg string) *opError {
	return &opError{code: CodeNotFound, msg: msg}
}

func errNotAuthor(msg string) *opError {
	return &opError{code: CodeNotAuthor, msg: msg}
}

func errInvalid(msg string) *opError {
	return &opError{code: CodeInvalidFrame, msg: msg}
}

func errPersistence(err error) *opError {
	return &opError{code: CodePersistenceUnavailable, msg: err.Error()}
}
