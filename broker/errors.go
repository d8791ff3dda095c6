package broker

import "fmt"

// NotInitializedError is returned when a Broker method is called on a
// nil or never-started Broker.
type NotInitializedError struct{}

func (e *NotInitializedError) Error() string {
	return "broker: not initialized"
}

// ConnectionFailedError wraps a failure opening a transaction against
// the underlying database.
type ConnectionFailedError struct {
	Reason string
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("broker: connection failed: %s", e.Reason)
}

// OperationTimeoutError is returned when a submitted operation's context
// is canceled before the writer goroutine could accept or finish it.
type OperationTimeoutError struct {
	Op string
}

func (e *OperationTimeoutError) Error() string {
	return fmt.Sprintf("broker: operation timed out: %s", e.Op)
}
