package ingest

import "errors"

// Sentinel errors implementing the finite taxonomy of spec §7. These map
// onto the "protocol", "timeout", "shutdown", and "io" buckets; "storage"
// errors originate in pkg/durablelog.
var (
	ErrProtocol     = errors.New("protocol error")
	ErrTimeout      = errors.New("timeout")
	ErrShutdown     = errors.New("shutdown")
	ErrDisconnected = errors.New("disconnected")
	ErrIdleDead     = errors.New("idle connection")
)

// CommandError wraps a pending-command timeout (ErrTimeout) with the request
// id of the command that timed out. Disconnect and shutdown completions are
// returned as the bare ErrDisconnected / ErrShutdown sentinels instead.
type CommandError struct {
	RequestID string
	Err       error
}

func (e *CommandError) Error() string {
	return "command " + e.RequestID + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error { return e.Err }
