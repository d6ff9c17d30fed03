package httpclient

import "fmt"

// RetryableError is returned when every retry attempt has failed.
type RetryableError struct {
	StatusCode int // last status observed, 0 for transport errors
	Message    string
	Err        error
}

func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RetryableError) Unwrap() error { return e.Err }
